package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"sima-events/internal/domain"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// EventPublisher is the best-effort producer. Publish never fails the
// caller.
type EventPublisher interface {
	Publish(ctx context.Context, topic domain.Topic, payload any)
}

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, id string, req domain.UpdateUserRequest) (*domain.User, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, limit, offset int) ([]domain.User, error)
}

type UserService struct {
	userRepository UserRepository
	events         EventPublisher
}

func NewUserService(userRepository UserRepository, events EventPublisher) *UserService {
	return &UserService{userRepository: userRepository, events: events}
}

func (s *UserService) CreateUser(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if err := domain.ValidateEmail(req.Email); err != nil {
		return nil, err
	}
	if err := domain.ValidateUserName(req.Name); err != nil {
		return nil, err
	}
	role, err := parseRole(req.Role)
	if err != nil {
		return nil, err
	}

	existing, err := s.userRepository.GetByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrUserEmailExists
	}

	user := &domain.User{
		ID:       uuid.NewString(),
		Email:    req.Email,
		Name:     strings.TrimSpace(req.Name),
		Role:     role,
		IsActive: true,
	}
	if err := s.userRepository.Create(ctx, user); err != nil {
		return nil, err
	}

	s.events.Publish(ctx, domain.TopicUserCreated, userPayload(user))

	log.WithFields(log.Fields{
		"user_id": user.ID,
		"email":   user.Email,
	}).Info("User successfully created")

	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrInvalidUUID
	}
	return s.userRepository.GetByID(ctx, id)
}

func (s *UserService) UpdateUser(ctx context.Context, id string, req domain.UpdateUserRequest) (*domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrInvalidUUID
	}

	if req.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*req.Email))
		if err := domain.ValidateEmail(email); err != nil {
			return nil, err
		}
		existing, err := s.userRepository.GetByEmail(ctx, email)
		if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
			return nil, err
		}
		if existing != nil && existing.ID != id {
			return nil, domain.ErrUserEmailExists
		}
		req.Email = &email
	}
	if req.Name != nil {
		if err := domain.ValidateUserName(*req.Name); err != nil {
			return nil, err
		}
	}
	if req.Role != nil {
		role, err := parseRole(*req.Role)
		if err != nil {
			return nil, err
		}
		req.Role = &role
	}

	user, err := s.userRepository.Update(ctx, id, req)
	if err != nil {
		return nil, err
	}

	s.events.Publish(ctx, domain.TopicUserUpdated, userPayload(user))

	log.WithField("user_id", id).Info("User successfully updated")
	return user, nil
}

func (s *UserService) DeleteUser(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrInvalidUUID
	}
	if err := s.userRepository.Delete(ctx, id); err != nil {
		return err
	}

	log.WithField("user_id", id).Info("User successfully deleted")
	return nil
}

func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]domain.User, error) {
	offset, limit = page(offset, limit)

	users, err := s.userRepository.List(ctx, limit, offset)
	if err != nil {
		log.WithError(err).Error("Failed to list users")
		return nil, err
	}
	return users, nil
}

func parseRole(role string) (string, error) {
	switch r := strings.ToUpper(strings.TrimSpace(role)); r {
	case "":
		return domain.RoleUser, nil
	case domain.RoleAdmin, domain.RoleManager, domain.RoleAnalyst, domain.RoleUser:
		return r, nil
	default:
		return "", domain.ErrInvalidUserRole
	}
}

func userPayload(u *domain.User) domain.UserPayload {
	return domain.UserPayload{
		ID:        domain.ID(u.ID),
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

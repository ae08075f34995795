package server

import (
	"context"
	"errors"
	"net/http"

	"sima-events/internal/domain"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

type UserService interface {
	CreateUser(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
	UpdateUser(ctx context.Context, id string, req domain.UpdateUserRequest) (*domain.User, error)
	DeleteUser(ctx context.Context, id string) error
	ListUsers(ctx context.Context, limit, offset int) ([]domain.User, error)
}

type userServer struct {
	userService UserService
}

func NewUserServer(userService UserService) *userServer {
	return &userServer{userService: userService}
}

func handleUserError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, domain.ErrUserEmailExists):
		return http.StatusConflict, "user with this email already exists"
	case errors.Is(err, domain.ErrInvalidEmail):
		return http.StatusBadRequest, "invalid email format"
	case errors.Is(err, domain.ErrInvalidUserName), errors.Is(err, domain.ErrInvalidUserRole), errors.Is(err, domain.ErrInvalidUUID):
		return http.StatusBadRequest, "invalid request"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func (s *userServer) CreateUser(c echo.Context) error {
	var req domain.CreateUserRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	user, err := s.userService.CreateUser(c.Request().Context(), req)
	if err != nil {
		log.WithError(err).Error("Failed to create user")
		statusCode, errorMsg := handleUserError(err)
		return errorJSON(c, statusCode, errorMsg)
	}

	return c.JSON(http.StatusCreated, user)
}

func (s *userServer) GetUser(c echo.Context) error {
	id := c.Param("id")

	user, err := s.userService.GetUser(c.Request().Context(), id)
	if err != nil {
		log.WithError(err).WithField("user_id", id).Error("Failed to get user")
		statusCode, errorMsg := handleUserError(err)
		return errorJSON(c, statusCode, errorMsg)
	}

	return c.JSON(http.StatusOK, user)
}

func (s *userServer) UpdateUser(c echo.Context) error {
	id := c.Param("id")

	var req domain.UpdateUserRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	user, err := s.userService.UpdateUser(c.Request().Context(), id, req)
	if err != nil {
		log.WithError(err).WithField("user_id", id).Error("Failed to update user")
		statusCode, errorMsg := handleUserError(err)
		return errorJSON(c, statusCode, errorMsg)
	}

	return c.JSON(http.StatusOK, user)
}

func (s *userServer) DeleteUser(c echo.Context) error {
	id := c.Param("id")

	if err := s.userService.DeleteUser(c.Request().Context(), id); err != nil {
		log.WithError(err).WithField("user_id", id).Error("Failed to delete user")
		statusCode, errorMsg := handleUserError(err)
		return errorJSON(c, statusCode, errorMsg)
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *userServer) ListUsers(c echo.Context) error {
	limit, offset := limitOffset(c)

	users, err := s.userService.ListUsers(c.Request().Context(), limit, offset)
	if err != nil {
		log.WithError(err).Error("Failed to list users")
		statusCode, errorMsg := handleUserError(err)
		return errorJSON(c, statusCode, errorMsg)
	}

	return c.JSON(http.StatusOK, users)
}

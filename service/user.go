package service

import (
	"errors"
	"regexp"
	"strings"

	"genshai/model"

	"golang.org/x/crypto/bcrypt"
)

// UserStore is what registration and login need from the persistence layer.
type UserStore interface {
	UserExists(username, email string) bool
	CreateUser(user *model.User) error
	GetUserByUsername(username string) (*model.User, error)
}

type UserService struct {
	store UserStore
}

func NewUserService(store UserStore) *UserService {
	return &UserService{store: store}
}

type User struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func isValidEmail(email string) bool {
	if strings.TrimSpace(email) == "" {
		return false
	}
	return emailRegex.MatchString(email)
}

func (service *UserService) Register(user *User) error {
	if !isValidEmail(user.Email) {
		return errors.New("invalid email address")
	}

	if service.store.UserExists(user.Username, user.Email) {
		return errors.New("user already exists")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return errors.New("internal server error")
	}

	newUser := &model.User{
		Username: user.Username,
		Email:    user.Email,
		Password: string(hashedPassword),
	}
	if err := service.store.CreateUser(newUser); err != nil {
		return errors.New("internal server error")
	}
	return nil
}

func (service *UserService) Login(user *User) (string, error) {
	registeredUser, err := service.store.GetUserByUsername(user.Username)
	if err != nil {
		return "", errors.New("failed to get user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(registeredUser.Password), []byte(user.Password)); err != nil {
		return "", errors.New("invalid credentials")
	}

	ts := &TokenService{}
	token, err := ts.CreateToken(registeredUser.ID, registeredUser.Username)
	if err != nil {
		logger.Warnf("Error generating token: %v", err)
		return "", errors.New("failed to generate token")
	}

	return token.AccessToken, nil
}

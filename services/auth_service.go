package services

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/Alsond5/Wordle-Arena/models"
)

// AuthClaims is the identity carried inside a verified token.
type AuthClaims struct {
	UID      string
	Username string
}

// AuthResult is the envelope returned by every auth endpoint. Payload holds
// the token on success and a human-readable message on failure.
type AuthResult struct {
	Error   bool        `json:"error"`
	Payload string      `json:"payload"`
	User    *PublicUser `json:"user"`
}

type PublicUser struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
}

type AuthService struct {
	db        *gorm.DB
	jwtSecret string
}

func NewAuthService(db *gorm.DB, jwtSecret string) *AuthService {
	return &AuthService{db: db, jwtSecret: jwtSecret}
}

// Register creates a user and returns a signed token. Taken usernames and
// blank credentials come back as error envelopes, not errors.
func (s *AuthService) Register(username, password string) (*AuthResult, error) {
	if username == "" || password == "" {
		return &AuthResult{Error: true, Payload: "invalid username or password"}, nil
	}

	var existing models.User
	err := s.db.Where("username = ?", username).First(&existing).Error
	if err == nil {
		return &AuthResult{Error: true, Payload: "username is already taken, please try another one"}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := models.User{Username: username, PasswordHash: string(hash)}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, err
	}

	token, err := s.issueToken(user.ID, user.Username)
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		Payload: token,
		User:    &PublicUser{ID: strconv.FormatUint(uint64(user.ID), 10), Username: user.Username},
	}, nil
}

// Login checks credentials and returns a signed token.
func (s *AuthService) Login(username, password string) (*AuthResult, error) {
	if username == "" || password == "" {
		return &AuthResult{Error: true, Payload: "invalid username or password"}, nil
	}

	var user models.User
	err := s.db.Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &AuthResult{Error: true, Payload: "wrong username or password, please try again"}, nil
	}
	if err != nil {
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return &AuthResult{Error: true, Payload: "wrong username or password, please try again"}, nil
	}

	token, err := s.issueToken(user.ID, user.Username)
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		Payload: token,
		User:    &PublicUser{ID: strconv.FormatUint(uint64(user.ID), 10), Username: user.Username},
	}, nil
}

// GetUser returns the profile envelope for a user id.
func (s *AuthService) GetUser(uid string) (*AuthResult, error) {
	id, err := strconv.ParseUint(uid, 10, 64)
	if err != nil {
		return &AuthResult{Error: true, Payload: "user not found"}, nil
	}

	var user models.User
	dbErr := s.db.First(&user, id).Error
	if errors.Is(dbErr, gorm.ErrRecordNotFound) {
		return &AuthResult{Error: true, Payload: "user not found"}, nil
	}
	if dbErr != nil {
		return nil, dbErr
	}

	return &AuthResult{
		Payload: uid,
		User:    &PublicUser{ID: uid, Username: user.Username},
	}, nil
}

func (s *AuthService) issueToken(id uint, username string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid":      strconv.FormatUint(uint64(id), 10),
		"username": username,
	})
	return token.SignedString([]byte(s.jwtSecret))
}

// VerifyToken parses and validates a token, returning the embedded identity.
// Satisfies TokenVerifier for the gateway.
func (s *AuthService) VerifyToken(tokenString string) (*AuthClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	uid, _ := claims["uid"].(string)
	username, _ := claims["username"].(string)
	if uid == "" || username == "" {
		return nil, errors.New("invalid token claims")
	}

	return &AuthClaims{UID: uid, Username: username}, nil
}

package auth_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Fiscal-api/internal/application/auth"
	"github.com/jhoicas/Fiscal-api/internal/application/dto"
	"github.com/jhoicas/Fiscal-api/internal/domain"
	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
	"github.com/jhoicas/Fiscal-api/pkg/jwt"
)

type memUsers struct {
	mu      sync.Mutex
	byEmail map[string]entity.User
}

func (m *memUsers) Create(_ context.Context, u *entity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byEmail[u.Email] = *u
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id string) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byEmail {
		if u.ID == id {
			u := u
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byEmail[email]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func newUseCase() *auth.AuthUseCase {
	return auth.NewAuthUseCase(&memUsers{byEmail: map[string]entity.User{}}, auth.JWTConfig{
		Secret: "secreto", ExpMinutes: 60, Issuer: "fiscal-api",
	})
}

func TestRegisterUser_RolPorDefectoOperador(t *testing.T) {
	uc := newUseCase()

	out, err := uc.RegisterUser(context.Background(), dto.RegisterRequest{Email: "Caixa@Loja.com", Password: "12345678"})
	require.NoError(t, err)
	assert.Equal(t, entity.RoleOperator, out.Role)
	assert.Equal(t, "caixa@loja.com", out.Email)
}

func TestRegisterUser_EmailDuplicado(t *testing.T) {
	uc := newUseCase()
	ctx := context.Background()
	req := dto.RegisterRequest{Email: "admin@loja.com", Password: "12345678", Role: entity.RoleAdmin}

	_, err := uc.RegisterUser(ctx, req)
	require.NoError(t, err)
	_, err = uc.RegisterUser(ctx, req)
	assert.ErrorIs(t, err, domain.ErrEmailAlreadyExists)
}

func TestRegisterUser_RolDesconocido(t *testing.T) {
	uc := newUseCase()

	_, err := uc.RegisterUser(context.Background(), dto.RegisterRequest{Email: "x@loja.com", Password: "12345678", Role: "bodeguero"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestLogin_TokenConRol(t *testing.T) {
	uc := newUseCase()
	ctx := context.Background()
	_, err := uc.RegisterUser(ctx, dto.RegisterRequest{Email: "admin@loja.com", Password: "12345678", Role: entity.RoleAdmin})
	require.NoError(t, err)

	out, err := uc.Login(ctx, dto.LoginRequest{Email: "admin@loja.com", Password: "12345678"})
	require.NoError(t, err)
	_, role, err := jwt.Parse("secreto", out.Token)
	require.NoError(t, err)
	assert.Equal(t, entity.RoleAdmin, role)
}

func TestLogin_ContrasenaIncorrecta(t *testing.T) {
	uc := newUseCase()
	ctx := context.Background()
	_, err := uc.RegisterUser(ctx, dto.RegisterRequest{Email: "admin@loja.com", Password: "12345678"})
	require.NoError(t, err)

	_, err = uc.Login(ctx, dto.LoginRequest{Email: "admin@loja.com", Password: "otra-clave"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = uc.Login(ctx, dto.LoginRequest{Email: "nadie@loja.com", Password: "12345678"})
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

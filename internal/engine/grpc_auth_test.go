package engine

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/gridrules/internal/domain"
	"github.com/xela07ax/gridrules/internal/infra/auth"
	"github.com/xela07ax/gridrules/internal/rules"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func signToken(t *testing.T, key *rsa.PrivateKey, scopes map[string]bool) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, &domain.CustomClaims{
		UserID: "operator-7",
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	s, err := token.SignedString(key)
	require.NoError(t, err)
	return s
}

func TestGRPC_Auth(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	stranger, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	states := &fakeStates{states: map[string]domain.State{"case14": gridState()}}
	a, _, _ := newTestArbiter(t, rules.NewAlwaysLegal, states, nil)
	client := startGRPCWithAuth(t, a, auth.NewBaseValidator(&key.PublicKey))

	allowed := map[string]bool{domain.ScopeLegalityCheck: true}
	tests := []struct {
		name  string
		token string
		want  codes.Code
	}{
		{name: "missing token", want: codes.Unauthenticated},
		{name: "garbage token", token: "Bearer not-a-jwt", want: codes.Unauthenticated},
		{name: "foreign key", token: "Bearer " + signToken(t, stranger, allowed), want: codes.Unauthenticated},
		{name: "missing scope", token: "Bearer " + signToken(t, key, map[string]bool{"audit:read": true}), want: codes.PermissionDenied},
		{name: "valid", token: "Bearer " + signToken(t, key, allowed), want: codes.OK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.token != "" {
				ctx = metadata.AppendToOutgoingContext(ctx, "authorization", tt.token)
			}
			out, err := client.Check(ctx, CheckRequest{EnvID: "case14"})
			assert.Equal(t, tt.want, status.Code(err))
			if tt.want == codes.OK {
				require.NoError(t, err)
				assert.Equal(t, true, out.AsMap()["legal"])
			}
		})
	}
}

func TestUnaryAuthInterceptor_PassesClaims(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	icpt := UnaryAuthInterceptor(auth.NewBaseValidator(&key.PublicKey), domain.ScopeLegalityCheck)
	token := signToken(t, key, map[string]bool{domain.ScopeLegalityCheck: true})
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token))

	var got *domain.CustomClaims
	_, err = icpt(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/gridrules.v1.Legality/Check"},
		func(ctx context.Context, _ interface{}) (interface{}, error) {
			got, _ = auth.ClaimsFromContext(ctx)
			return nil, nil
		})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "operator-7", got.UserID)

	_, err = icpt(context.Background(), nil, &grpc.UnaryServerInfo{}, func(context.Context, interface{}) (interface{}, error) {
		t.Fatal("handler must not run without metadata")
		return nil, nil
	})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

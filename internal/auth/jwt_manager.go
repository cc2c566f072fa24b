package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("jwt-manager")

// RoleSupervisor may watch the live position feed
const RoleSupervisor = "supervisor"

// JWTManager validates agent tokens issued by the platform's identity
// service. It shares the HMAC secret with the issuer.
type JWTManager struct {
	signingKey string
	algorithm  string
	keyID      string
	tracer     trace.Tracer
}

// Claims represents the JWT claims of a field agent
type Claims struct {
	AgentID string   `json:"agent_id"`
	Name    string   `json:"name,omitempty"`
	Roles   []string `json:"roles"`
	jwt.RegisteredClaims
}

// Agent returns the agent identity: the agent_id claim, or the subject
func (c *Claims) Agent() string {
	if c.AgentID != "" {
		return c.AgentID
	}
	return c.Subject
}

// HasRole reports whether the token carries role
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// NewJWTManager creates a JWT manager for the shared secret
func NewJWTManager(signingKey string) (*JWTManager, error) {
	if signingKey == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	return &JWTManager{
		signingKey: signingKey,
		algorithm:  "HS256",
		keyID:      "default",
		tracer:     tracer,
	}, nil
}

// GenerateToken signs a token for agentID. Production tokens come from the
// identity service; this exists for local runs and tests.
func (jm *JWTManager) GenerateToken(ctx context.Context, agentID string, roles []string, duration time.Duration) (string, error) {
	ctx, span := jm.tracer.Start(ctx, "jwt.generate_token")
	defer span.End()

	span.SetAttributes(attribute.String("agent.id", agentID))

	now := time.Now()
	claims := &Claims{
		AgentID: agentID,
		Roles:   roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "visit-guard",
			Subject:   agentID,
			ID:        fmt.Sprintf("jwt-%d", now.UnixNano()),
		},
	}

	token := jwt.NewWithClaims(jwt.GetSigningMethod(jm.algorithm), claims)
	token.Header["kid"] = jm.keyID

	tokenString, err := token.SignedString([]byte(jm.signingKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken validates a JWT token
func (jm *JWTManager) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	ctx, span := jm.tracer.Start(ctx, "jwt.validate_token")
	defer span.End()

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jm.algorithm {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		// Key ID mismatch - might indicate key rotation
		if kid, ok := token.Header["kid"].(string); ok && kid != jm.keyID {
			span.SetAttributes(attribute.String("jwt.kid_mismatch", kid))
		}

		return []byte(jm.signingKey), nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.Agent() == "" {
		return nil, errors.New("token carries no agent identity")
	}

	span.SetAttributes(
		attribute.String("agent.id", claims.Agent()),
		attribute.String("jwt.id", claims.ID),
	)
	return claims, nil
}

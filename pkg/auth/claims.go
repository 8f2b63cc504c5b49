package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/volna-retail/loyalty-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	SubjectID uuid.UUID
	Role      enums.OperatorType
	StoreID   *uuid.UUID
	JTI       string
}

// AccessTokenClaims represents the typed JWT issued to clients. SubjectID
// is the member id for MEMBER tokens and the staff or admin id otherwise.
type AccessTokenClaims struct {
	SubjectID uuid.UUID          `json:"subject_id"`
	Role      enums.OperatorType `json:"role"`
	StoreID   *uuid.UUID         `json:"store_id,omitempty"`
	jwt.RegisteredClaims
}

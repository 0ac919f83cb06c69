package httpapi

import (
	"net/http"

	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/ledger"
	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
)

// requireActor turns validated session claims into an explicit ledger.Actor.
func requireActor() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		claims := getClaims(ctx)
		if claims == nil {
			abortWithError(ctx, http.StatusUnauthorized, "unauthorized", "missing session")
			return
		}
		actor, err := actorFromClaims(claims)
		if err != nil {
			abortWithError(ctx, http.StatusUnauthorized, "unauthorized", "session has no user")
			return
		}
		ctx.Set(actorContextKey, actor)
		ctx.Next()
	}
}

func requireAdmin() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !currentActor(ctx).IsAdmin() {
			abortWithError(ctx, http.StatusForbidden, errorForbidden, "admin role required")
			return
		}
		ctx.Next()
	}
}

// actorFromClaims picks the most privileged known role; sessions without one are applicants.
func actorFromClaims(claims *sessionvalidator.Claims) (ledger.Actor, error) {
	userID, err := ledger.NewUserID(claims.GetUserID())
	if err != nil {
		return ledger.Actor{}, err
	}
	role := ledger.RoleApplicant
	for _, raw := range claims.GetUserRoles() {
		parsed, err := ledger.ParseRole(raw)
		if err != nil {
			continue
		}
		if rolePrecedence(parsed) > rolePrecedence(role) {
			role = parsed
		}
	}
	return ledger.Actor{UserID: userID, Role: role}, nil
}

func rolePrecedence(role ledger.Role) int {
	switch role {
	case ledger.RoleAdmin:
		return 2
	case ledger.RoleCompany:
		return 1
	default:
		return 0
	}
}

func getClaims(ctx *gin.Context) *sessionvalidator.Claims {
	claimsValue, ok := ctx.Get(claimsContextKey)
	if !ok {
		return nil
	}
	claims, _ := claimsValue.(*sessionvalidator.Claims)
	return claims
}

func currentActor(ctx *gin.Context) ledger.Actor {
	actorValue, ok := ctx.Get(actorContextKey)
	if !ok {
		return ledger.Actor{}
	}
	actor, _ := actorValue.(ledger.Actor)
	return actor
}

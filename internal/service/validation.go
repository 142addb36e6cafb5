package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"HoneyHubUsers/internal/domain"
)

type PlansStore interface {
	GetPlanByID(ctx context.Context, id int64) (domain.SubscriptionPlan, error)
}

// ValidationPolicy applies the business rules a request must satisfy before
// any credential work starts. Checks report the first violation only.
type ValidationPolicy struct {
	Plans PlansStore
}

func (v *ValidationPolicy) CheckPasswordUser(in CreatePasswordUserInput) *domain.Failure {
	if f := checkIdentity(in.UserName, in.Email); f != nil {
		return f
	}
	if strings.TrimSpace(in.Password) == "" {
		return domain.InvalidArgument("password_required", "Password is required.")
	}
	return nil
}

func (v *ValidationPolicy) CheckExternalUser(in CreateExternalUserInput) *domain.Failure {
	if f := checkIdentity(in.UserName, in.Email); f != nil {
		return f
	}
	if strings.TrimSpace(in.Provider) == "" {
		return domain.InvalidArgument("provider_required", "Provider is required.")
	}
	if strings.TrimSpace(in.ProviderKey) == "" {
		return domain.InvalidArgument("provider_id_required", "Provider id is required.")
	}
	return nil
}

// CheckAdminUser requires exactly one authentication method: a password or a
// complete provider pair.
func (v *ValidationPolicy) CheckAdminUser(in AdminCreateUserInput) *domain.Failure {
	if f := checkIdentity(in.UserName, in.Email); f != nil {
		return f
	}
	if strings.TrimSpace(in.CreatedBy) == "" {
		return domain.InvalidArgument("created_by_required", "Created by is required for admin user creation.")
	}

	provider := strings.TrimSpace(in.Provider)
	providerKey := strings.TrimSpace(in.ProviderKey)
	hasPassword := strings.TrimSpace(in.Password) != ""
	hasProvider := provider != "" || providerKey != ""

	switch {
	case hasProvider && (provider == "" || providerKey == ""):
		return domain.InvalidArgument("provider_incomplete", "Provider and provider id must be specified together.")
	case !hasPassword && !hasProvider:
		return domain.BusinessRule("auth_method_required", "A password or an external provider must be specified for admin user creation.")
	case hasPassword && hasProvider:
		return domain.InvalidArgument("auth_method_ambiguous", "Specify either a password or an external provider, not both.")
	}
	return nil
}

// ResolvePlan returns the requested plan id when it exists and is active, or
// the default plan when none was requested.
func (v *ValidationPolicy) ResolvePlan(ctx context.Context, requested *int64) (int64, *domain.Failure, error) {
	if requested == nil {
		return domain.DefaultSubscriptionPlanID, nil, nil
	}

	id := *requested
	plan, err := v.Plans.GetPlanByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, domain.BusinessRule("plan_not_found", fmt.Sprintf("Subscription plan with ID %d is not found.", id)), nil
		}
		return 0, nil, err
	}
	if !plan.IsActive {
		return 0, domain.BusinessRule("plan_inactive", fmt.Sprintf("Subscription plan with ID %d is inactive.", id)), nil
	}
	return id, nil, nil
}

func checkIdentity(userName, email string) *domain.Failure {
	userName = strings.TrimSpace(userName)
	email = strings.TrimSpace(email)
	if userName == "" {
		return domain.InvalidArgument("username_required", "Username is required.")
	}
	if email == "" {
		return domain.InvalidArgument("email_required", "Email is required.")
	}
	if strings.EqualFold(userName, email) {
		return domain.BusinessRule("username_equals_email", "Username and email address cannot be identical.")
	}
	return nil
}

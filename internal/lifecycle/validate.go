package lifecycle

import (
	"context"
	"errors"

	"esim-service/internal/access"
	"esim-service/internal/model"
	"esim-service/internal/provider"
)

// Validate asks the profile's carrier about its stored activation code and
// logs the outcome with the raw provider response. Status never changes.
func (e *Engine) Validate(ctx context.Context, actor model.Actor, id string) (*provider.Result, error) {
	p, err := e.load(ctx, actor, access.ActionValidate, id)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.ProviderTimeout)
	result, callErr := e.providers.ValidateActivationCode(callCtx, p.Provider, p.ActivationCode)
	cancel()

	details := map[string]interface{}{"provider": string(p.Provider)}
	if callErr != nil {
		details["kind"] = validationFailureKind(callErr)
		var rejection *model.BusinessRejection
		if errors.As(callErr, &rejection) {
			details["providerCode"] = rejection.Code
			details["response"] = rejection.Response
		}
		return nil, e.reject(context.WithoutCancel(ctx), p, model.OperationValidate, actor, callErr, details)
	}

	details["response"] = result.Response
	entry := e.entry(p, model.OperationValidate, model.LogSuccess, actor, details)
	if err := e.store.AppendLog(context.WithoutCancel(ctx), entry); err != nil {
		return nil, err
	}
	e.recorded(ctx, entry)
	return result, nil
}

// ValidateCode checks a code that is not stored on any profile. Nothing is
// logged to the operation log because no profile exists.
func (e *Engine) ValidateCode(ctx context.Context, actor model.Actor, providerName, code string) (*provider.Result, error) {
	if err := e.authorize(ctx, actor, access.ActionValidate, actor.TenantID); err != nil {
		return nil, err
	}
	p, ok := model.ParseProvider(providerName)
	if !ok {
		return nil, &model.ValidationError{Fields: map[string]string{"provider": "must be one of MPT, ATOM, OOREDOO, MYTEL"}}
	}
	if code == "" {
		return nil, &model.ValidationError{Fields: map[string]string{"activationCode": "is required"}}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.ProviderTimeout)
	defer cancel()
	return e.providers.ValidateActivationCode(callCtx, p, code)
}

func validationFailureKind(err error) string {
	var (
		formatErr    *model.FormatError
		transportErr *model.TransportError
		rejection    *model.BusinessRejection
	)
	switch {
	case errors.As(err, &formatErr):
		return "format"
	case errors.As(err, &transportErr):
		return "transport"
	case errors.As(err, &rejection):
		return "rejected"
	default:
		return "unknown"
	}
}

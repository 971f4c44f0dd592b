package twilio

import (
	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/harunnryd/lexturn/pkg/errorsx"
)

type callCreator interface {
	CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error)
}

type callUpdater interface {
	UpdateCall(sid string, params *api.UpdateCallParams) (*api.ApiV2010Call, error)
}

// restAPI builds the v2010 REST service from the account credentials.
func restAPI(cfg Config) (*api.ApiService, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, errorsx.New(errorsx.ReasonConfig, "twilio: account_sid and auth_token are required")
	}
	return twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	}).Api, nil
}

package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"jobpay/internal/engine"
)

var (
	profileTags = []string{"profile"}
	adminTags   = []string{"admin"}
)

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerContracts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-contract",
		Method:      http.MethodGet,
		Path:        "/contracts/{id}",
		Summary:     "Get a contract the caller is party to",
		Tags:        profileTags,
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body ContractResponse `json:"body"`
	}, error) {
		caller, authErr := profileFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.GetContract(ctx, caller, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body ContractResponse `json:"body"`
		}{Body: contractResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-contracts",
		Method:      http.MethodGet,
		Path:        "/contracts",
		Summary:     "List the caller's non-terminated contracts",
		Tags:        profileTags,
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ContractResponse `json:"body"`
	}, error) {
		caller, authErr := profileFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListContracts(ctx, caller)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body []ContractResponse `json:"body"`
		}{Body: mapContracts(items)}, nil
	})
}

func registerJobs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-unpaid-jobs",
		Method:      http.MethodGet,
		Path:        "/jobs/unpaid",
		Summary:     "List unpaid jobs of the caller's in-progress contracts",
		Tags:        profileTags,
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []JobResponse `json:"body"`
	}, error) {
		caller, authErr := profileFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListUnpaidJobs(ctx, caller)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body []JobResponse `json:"body"`
		}{Body: mapJobs(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "pay-job",
		Method:        http.MethodPost,
		Path:          "/jobs/{job_id}/pay",
		Summary:       "Pay for a job",
		Description:   "Moves the job price from the calling client to the contractor and marks the job paid, atomically.",
		Tags:          profileTags,
		DefaultStatus: http.StatusOK,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		JobID int64 `path:"job_id"`
	}) (*struct {
		Body PaymentResponse `json:"body"`
	}, error) {
		caller, authErr := profileFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		pay, err := e.PayJob(ctx, caller, input.JobID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body PaymentResponse `json:"body"`
		}{Body: paymentResponse(pay)}, nil
	})
}

func registerBalances(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "deposit",
		Method:        http.MethodPost,
		Path:          "/balances/deposit/{userId}",
		Summary:       "Deposit into the caller's own balance",
		Description:   "A client may deposit at most a share (25% by default) of the total price of their unpaid in-progress jobs.",
		Tags:          profileTags,
		DefaultStatus: http.StatusOK,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		UserID int64 `path:"userId"`
		Body   DepositRequest
	}) (*struct {
		Body DepositResponse `json:"body"`
	}, error) {
		caller, authErr := profileFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.Deposit(ctx, caller, input.UserID, input.Body.value())
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body DepositResponse `json:"body"`
		}{Body: DepositResponse{Message: "Deposit successful.", NewBalance: amount(res.NewBalance)}}, nil
	})
}

type reportRange struct {
	Start string `query:"start" doc:"Range start, RFC 3339 or YYYY-MM-DD"`
	End   string `query:"end" doc:"Range end, RFC 3339 or YYYY-MM-DD (a date covers the whole day)"`
}

func registerAdmin(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "best-profession",
		Method:      http.MethodGet,
		Path:        "/admin/best-profession",
		Summary:     "Profession that earned the most in a date range",
		Tags:        adminTags,
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *reportRange) (*struct {
		Body ProfessionResponse `json:"body"`
	}, error) {
		start, end, err := engine.ParseRange(input.Start, input.End)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		best, err := e.BestProfession(ctx, start, end)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body ProfessionResponse `json:"body"`
		}{Body: ProfessionResponse{Profession: best.Profession, TotalEarnings: amount(best.TotalEarnings)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "best-clients",
		Method:      http.MethodGet,
		Path:        "/admin/best-clients",
		Summary:     "Clients that paid the most in a date range",
		Tags:        adminTags,
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Start string `query:"start" doc:"Range start, RFC 3339 or YYYY-MM-DD"`
		End   string `query:"end" doc:"Range end, RFC 3339 or YYYY-MM-DD (a date covers the whole day)"`
		Limit int    `query:"limit" default:"2" minimum:"1" maximum:"100"`
	}) (*struct {
		Body []ClientPaymentsResponse `json:"body"`
	}, error) {
		start, end, err := engine.ParseRange(input.Start, input.End)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		items, err := e.BestClients(ctx, start, end, input.Limit)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body []ClientPaymentsResponse `json:"body"`
		}{Body: mapClients(items)}, nil
	})
}

package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// (POST /api/v1/deposits)
	Deposit(w http.ResponseWriter, r *http.Request)
	// (POST /api/v1/withdrawals)
	Withdraw(w http.ResponseWriter, r *http.Request)
	// (POST /api/v1/draws)
	Draw(w http.ResponseWriter, r *http.Request)
	// (GET /api/v1/escrow)
	GetEscrow(w http.ResponseWriter, r *http.Request)
	// (GET /api/v1/depositors/{address})
	GetDepositor(w http.ResponseWriter, r *http.Request, address string)
	// (GET /api/v1/operations)
	ListOperations(w http.ResponseWriter, r *http.Request, params ListOperationsParams)
	// (GET /health)
	HealthCheck(w http.ResponseWriter, r *http.Request)
	// (GET /metrics)
	Metrics(w http.ResponseWriter, r *http.Request)
}

// MiddlewareFunc wraps a single handler.
type MiddlewareFunc func(http.Handler) http.Handler

// ServerInterfaceWrapper converts contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	HandlerMiddlewares []MiddlewareFunc
	ErrorHandlerFunc   func(w http.ResponseWriter, r *http.Request, err error)
}

// InvalidParamFormatError is passed to ErrorHandlerFunc when a parameter does not bind.
type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("Invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error { return e.Err }

func (siw *ServerInterfaceWrapper) serve(w http.ResponseWriter, r *http.Request, h http.Handler) {
	for _, middleware := range siw.HandlerMiddlewares {
		h = middleware(h)
	}
	h.ServeHTTP(w, r)
}

// Deposit operation middleware.
func (siw *ServerInterfaceWrapper) Deposit(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, http.HandlerFunc(siw.Handler.Deposit))
}

// Withdraw operation middleware.
func (siw *ServerInterfaceWrapper) Withdraw(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, http.HandlerFunc(siw.Handler.Withdraw))
}

// Draw operation middleware.
func (siw *ServerInterfaceWrapper) Draw(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, http.HandlerFunc(siw.Handler.Draw))
}

// GetEscrow operation middleware.
func (siw *ServerInterfaceWrapper) GetEscrow(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, http.HandlerFunc(siw.Handler.GetEscrow))
}

// GetDepositor operation middleware.
func (siw *ServerInterfaceWrapper) GetDepositor(w http.ResponseWriter, r *http.Request) {
	var address string

	err := runtime.BindStyledParameterWithOptions("simple", "address", chi.URLParam(r, "address"), &address,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "address", Err: err})
		return
	}

	siw.serve(w, r, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetDepositor(w, r, address)
	}))
}

// ListOperations operation middleware.
func (siw *ServerInterfaceWrapper) ListOperations(w http.ResponseWriter, r *http.Request) {
	var params ListOperationsParams

	err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &params.Limit)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "limit", Err: err})
		return
	}

	siw.serve(w, r, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.ListOperations(w, r, params)
	}))
}

// HealthCheck operation middleware.
func (siw *ServerInterfaceWrapper) HealthCheck(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, http.HandlerFunc(siw.Handler.HealthCheck))
}

// Metrics operation middleware.
func (siw *ServerInterfaceWrapper) Metrics(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, http.HandlerFunc(siw.Handler.Metrics))
}

// ChiServerOptions configures HandlerWithOptions.
type ChiServerOptions struct {
	BaseURL          string
	BaseRouter       chi.Router
	Middlewares      []MiddlewareFunc
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// Handler creates http.Handler with routing matching the escrow API.
func Handler(si ServerInterface) http.Handler {
	return HandlerWithOptions(si, ChiServerOptions{})
}

// HandlerWithOptions creates http.Handler with additional options.
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter
	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandlerFunc:   options.ErrorHandlerFunc,
	}

	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/api/v1/deposits", wrapper.Deposit)
	})
	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/api/v1/withdrawals", wrapper.Withdraw)
	})
	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/api/v1/draws", wrapper.Draw)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/api/v1/escrow", wrapper.GetEscrow)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/api/v1/depositors/{address}", wrapper.GetDepositor)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/api/v1/operations", wrapper.ListOperations)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/health", wrapper.HealthCheck)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/metrics", wrapper.Metrics)
	})

	return r
}

// Package handlers implements the REST endpoints over the application
// services.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TaxFlow/internal/interfaces/http/middleware"
	"github.com/turtacn/TaxFlow/pkg/errors"
	"github.com/turtacn/TaxFlow/pkg/types/common"
)

const (
	defaultActor   = "api"
	maxRequestBody = 1 << 20
)

func actor(r *http.Request) string {
	return middleware.ActorFromContext(r.Context(), defaultActor)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// writeAppError renders err as {kind, code, message}. Internal errors are
// logged and masked.
func writeAppError(w http.ResponseWriter, logger logging.Logger, err error) {
	p := errors.ToPayload(err)
	status := errors.HTTPStatus(p.Code)
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if p.Kind == errors.KindInternal {
		logger.Error("request failed", logging.Err(err))
		p = &errors.Payload{Kind: errors.KindInternal, Code: errors.CodeInternal, Message: "internal server error"}
	}
	writeJSON(w, status, p)
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return errors.InvalidParam("request body is required")
		}
		return errors.InvalidParam("invalid request body").WithDetail(err.Error())
	}
	return nil
}

func parsePagination(r *http.Request) common.Pagination {
	p := common.Pagination{Page: 1, PageSize: common.DefaultPageSize}
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		p.Page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("page_size")); err == nil && v > 0 {
		p.PageSize = v
	}
	return p.Normalize()
}

// queryInt returns 0 for an absent parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.InvalidParam(name + " must be an integer").WithDetail(raw)
	}
	return v, nil
}

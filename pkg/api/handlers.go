package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"balance-ledger/pkg/ledger"
	"balance-ledger/pkg/logging"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func (s *Server) handleUseBalance(w http.ResponseWriter, r *http.Request) {
	var req UseBalanceRequest
	if !s.decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	result, err := s.ledger.UseBalance(ctx, *req.UserID, req.AccountNumber, *req.Amount)
	if err != nil {
		s.logger.Error("failed to use balance",
			logging.UserID(*req.UserID),
			logging.AccountNumber(req.AccountNumber),
			logging.Amount(*req.Amount),
			zap.String("code", string(ledger.CodeOf(err))),
		)
		if ledger.IsValidationError(err) {
			s.recordFailure(r.Context(), ledger.OpRecordFailedUse, func(ctx context.Context) error {
				return s.ledger.RecordFailedUse(ctx, req.AccountNumber, *req.Amount)
			})
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse(result))
}

func (s *Server) handleCancelBalance(w http.ResponseWriter, r *http.Request) {
	var req CancelBalanceRequest
	if !s.decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	result, err := s.ledger.CancelBalance(ctx, req.TransactionID, req.AccountNumber, *req.Amount)
	if err != nil {
		s.logger.Error("failed to cancel balance",
			logging.TransactionID(req.TransactionID),
			logging.AccountNumber(req.AccountNumber),
			logging.Amount(*req.Amount),
			zap.String("code", string(ledger.CodeOf(err))),
		)
		if ledger.IsValidationError(err) {
			s.recordFailure(r.Context(), ledger.OpRecordFailedCancel, func(ctx context.Context) error {
				return s.ledger.RecordFailedCancel(ctx, req.AccountNumber, *req.Amount)
			})
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse(result))
}

func (s *Server) handleQueryTransaction(w http.ResponseWriter, r *http.Request) {
	transactionID := mux.Vars(r)["transactionId"]

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	result, err := s.ledger.QueryTransaction(ctx, transactionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, queryResponse(result))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "healthy", http.StatusOK
	checks := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status, code = "unhealthy", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Unix(),
		"checks":    checks,
	})
}

// recordFailure writes the FAIL record for a rejected request. It is best
// effort: the caller's response does not depend on it. It runs detached from
// the request deadline, which may already have expired.
func (s *Server) recordFailure(parent context.Context, op string, record func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.config.RequestTimeout)
	defer cancel()

	if err := record(ctx); err != nil {
		s.logger.Warn("failed to record failed transaction",
			logging.Operation(op),
			zap.Error(err),
		)
	}
}

type validator interface {
	validate() error
}

// decode parses and shape-checks the body. Shape violations never reach the
// engine, so no FAIL record is written for them.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, req validator) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
				ErrorCode:    ledger.CodeInvalidRequest,
				ErrorMessage: fmt.Sprintf("request body exceeds %d bytes", MaxBodyBytes),
			})
			return false
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			ErrorCode:    ledger.CodeInvalidRequest,
			ErrorMessage: "malformed JSON body",
		})
		return false
	}
	if err := req.validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			ErrorCode:    ledger.CodeInvalidRequest,
			ErrorMessage: err.Error(),
		})
		return false
	}
	return true
}

// statusFor maps an engine error code to an HTTP status.
func statusFor(code ledger.ErrorCode) int {
	switch code {
	case ledger.CodeUserNotFound, ledger.CodeAccountNotFound, ledger.CodeTransactionNotFound:
		return http.StatusNotFound
	case ledger.CodeUserAccountMismatch, ledger.CodeTransactionAccountMismatch,
		ledger.CodeCancelMustBeFull, ledger.CodeInvalidRequest:
		return http.StatusBadRequest
	case ledger.CodeAccountAlreadyUnregistered, ledger.CodeAmountExceedsBalance, ledger.CodeTooOldToCancel:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := ledger.CodeOf(err)
	msg := code.Message()
	var le *ledger.Error
	if code != ledger.CodeInternal && errors.As(err, &le) {
		msg = le.Message
	}
	writeJSON(w, statusFor(code), ErrorResponse{ErrorCode: code, ErrorMessage: msg})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

package gin

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	recoverai "github.com/Pratik-Shirodkar/RecoverAI"
	x402http "github.com/Pratik-Shirodkar/RecoverAI/http"
	"github.com/Pratik-Shirodkar/RecoverAI/mandate"
)

// mandateService is the audit service name of the approval routes
const mandateService = "ap2"

type createMandateRequest struct {
	Payee             string      `json:"payee"`
	Amount            json.Number `json:"amount"`
	Currency          string      `json:"currency"`
	IntentDescription string      `json:"intent_description"`
}

type mandateIDRequest struct {
	MandateID string `json:"mandate_id" binding:"required"`
	Actor     string `json:"actor,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// SettlementReceipt is returned with a settled mandate
type SettlementReceipt struct {
	MandateID    string         `json:"mandate_id"`
	Payee        string         `json:"payee"`
	Amount       mandate.Amount `json:"amount"`
	TxHash       string         `json:"tx_hash"`
	Timestamp    string         `json:"timestamp"`
	AuthorizedBy string         `json:"authorized_by,omitempty"`
}

func (s *Server) registerMandates(r gin.IRouter) {
	r.POST("/create-mandate", s.handleCreateMandate)
	r.POST("/approve-mandate", s.handleApproveMandate)
	r.POST("/reject-mandate", s.handleRejectMandate)
	r.POST("/settle-mandate", s.handleSettleMandate)
	r.GET("/pending", s.handlePendingMandates)
}

func (s *Server) handleCreateMandate(c *gin.Context) {
	var req createMandateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, recoverai.NewPaymentError(recoverai.ErrCodeInvalidRequest, err.Error(), nil))
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = "USDC"
	}

	rec, err := s.mandates.Create(mandate.Params{
		Payee:    req.Payee,
		Amount:   req.Amount.String(),
		Currency: currency,
		Intent:   req.IntentDescription,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, recoverai.NewPaymentError(recoverai.ErrCodeInvalidRequest, err.Error(), nil))
		return
	}

	s.audit.Record(recoverai.AuditEntry{
		Event:   recoverai.EventMandateCreated,
		Service: mandateService,
		Amount:  rec.Mandate.CredentialSubject.Amount.Value + " " + currency,
		Details: map[string]interface{}{
			"mandate_id": rec.ID,
			"payee":      rec.Mandate.CredentialSubject.Payee,
			"status":     string(rec.Status),
		},
	})
	s.logger.Info("Mandate awaiting approval", "id", rec.ID, "payee", req.Payee, "amount", req.Amount)

	c.JSON(http.StatusOK, gin.H{"mandate": rec, "requires_human_approval": true})
}

func (s *Server) handleApproveMandate(c *gin.Context) {
	var req mandateIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, recoverai.NewPaymentError(recoverai.ErrCodeInvalidRequest, "mandate_id is required", nil))
		return
	}

	rec, err := s.mandates.Approve(req.MandateID, req.Actor)
	if err != nil {
		c.JSON(http.StatusNotFound, x402http.ErrorResponse{Error: "Mandate not found"})
		return
	}

	s.audit.Record(recoverai.AuditEntry{
		Event:   recoverai.EventMandateAuthorized,
		Service: mandateService,
		Details: map[string]interface{}{"mandate_id": rec.ID, "status": string(rec.Status)},
	})
	s.logger.Info("Mandate authorized", "id", rec.ID, "by", rec.Authorization.AuthorizedBy)

	c.JSON(http.StatusOK, gin.H{"mandate": rec, "status": rec.Status})
}

func (s *Server) handleRejectMandate(c *gin.Context) {
	var req mandateIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, recoverai.NewPaymentError(recoverai.ErrCodeInvalidRequest, "mandate_id is required", nil))
		return
	}

	rec, err := s.mandates.Reject(req.MandateID, req.Actor, req.Reason)
	if err != nil {
		c.JSON(http.StatusNotFound, x402http.ErrorResponse{Error: "Mandate not found"})
		return
	}

	s.audit.Record(recoverai.AuditEntry{
		Event:   recoverai.EventMandateRejected,
		Service: mandateService,
		Details: map[string]interface{}{"mandate_id": rec.ID, "reason": rec.Rejection.Reason},
	})
	s.logger.Info("Mandate rejected", "id", rec.ID, "reason", rec.Rejection.Reason)

	c.JSON(http.StatusOK, gin.H{"mandate": rec, "status": rec.Status})
}

func (s *Server) handleSettleMandate(c *gin.Context) {
	var req mandateIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, recoverai.NewPaymentError(recoverai.ErrCodeInvalidRequest, "mandate_id is required", nil))
		return
	}

	rec, err := s.mandates.Settle(c.Request.Context(), req.MandateID)
	switch {
	case errors.Is(err, mandate.ErrMandateNotFound), errors.Is(err, mandate.ErrInvalidTransition):
		c.JSON(http.StatusBadRequest, x402http.ErrorResponse{Error: "Mandate not authorized or not found"})
		return
	case err != nil:
		s.logger.Error("Mandate settlement failed", "id", req.MandateID, "err", err)
		c.JSON(http.StatusInternalServerError, recoverai.NewPaymentError(
			recoverai.ErrCodeSettlementFailed, err.Error(), map[string]interface{}{"mandate_id": req.MandateID}))
		return
	}

	subject := rec.Mandate.CredentialSubject
	s.audit.Record(recoverai.AuditEntry{
		Event:   recoverai.EventMandateSettled,
		Service: mandateService,
		Wallet:  recoverai.Identity(subject.Payee),
		Amount:  subject.Amount.Value + " " + subject.Amount.Currency,
		Details: map[string]interface{}{"mandate_id": rec.ID, "tx_hash": rec.Settlement.TxHash},
	})
	s.logger.Info("Mandate settled", "id", rec.ID, "tx", rec.Settlement.TxHash)

	receipt := SettlementReceipt{
		MandateID: rec.ID,
		Payee:     subject.Payee,
		Amount:    subject.Amount,
		TxHash:    rec.Settlement.TxHash,
		Timestamp: rec.Settlement.SettledAt,
	}
	if rec.Authorization != nil {
		receipt.AuthorizedBy = rec.Authorization.AuthorizedBy
	}
	c.JSON(http.StatusOK, gin.H{"mandate": rec, "status": rec.Status, "receipt": receipt})
}

func (s *Server) handlePendingMandates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"mandates": s.mandates.Pending()})
}

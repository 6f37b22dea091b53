package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/dmitrijs2005/umasend/internal/common"
	"github.com/dmitrijs2005/umasend/internal/server/payflow"
	"github.com/gin-gonic/gin"
)

func (s *Server) handlePubKeys(c *gin.Context) {
	c.JSON(http.StatusOK, s.opts.PubKeys)
}

type loginRequest struct {
	UserName string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, message("username and password are required"))
		return
	}

	token, err := s.users.Login(c.Request.Context(), req.UserName, req.Password)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			c.JSON(http.StatusUnauthorized, message(unauthorizedMessage))
			return
		}
		s.logger.Error(c.Request.Context(), "login", "error", err)
		c.JSON(http.StatusInternalServerError, message("Internal error."))
		return
	}

	c.JSON(http.StatusOK, gin.H{"accessToken": token})
}

func (s *Server) handleUTXOCallback(c *gin.Context) {
	ctx := c.Request.Context()
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		s.logger.Warn(ctx, "read utxo callback body", "tx_id", c.Query("txId"), "error", err)
		c.JSON(http.StatusBadRequest, message("Invalid request body."))
		return
	}
	s.logger.Info(ctx, "received utxo callback",
		"tx_id", c.Query("txId"),
		"body", string(body),
	)
	c.String(http.StatusOK, "ok")
}

func (s *Server) handleLookup(c *gin.Context) {
	res, err := s.flow.Lookup(c.Request.Context(), callerFrom(c), c.Param("address"), baseURL(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type payReqQuery struct {
	Amount                string `form:"amount" binding:"required"`
	ReceivingCurrencyCode string `form:"receivingCurrencyCode"`
	Currency              string `form:"currency"`
	SendingCurrency       string `form:"sendingCurrency"`
	IsBaseUnit            bool   `form:"isBaseUnit"`
}

func (s *Server) handlePayReq(c *gin.Context) {
	var q payReqQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.writeError(c, &payflow.Error{Kind: payflow.KindInvalidInput, Msg: "Invalid amount", Err: err})
		return
	}

	receiving := q.ReceivingCurrencyCode
	if receiving == "" {
		receiving = q.Currency
	}

	res, err := s.flow.PayReq(c.Request.Context(), callerFrom(c), payflow.PayReqInput{
		CallbackUUID:      c.Param("callbackUuid"),
		Amount:            q.Amount,
		ReceivingCurrency: receiving,
		SendingCurrency:   q.SendingCurrency,
		IsBaseUnit:        q.IsBaseUnit,
		BaseURL:           baseURL(c),
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleSendPayment(c *gin.Context) {
	sending := c.Query("sendingCurrency")
	if sending == "" {
		sending = c.Query("currency")
	}

	res, err := s.flow.SendPayment(c.Request.Context(), callerFrom(c), payflow.SendInput{
		CallbackUUID:    c.Param("callbackUuid"),
		SendingCurrency: sending,
		BaseURL:         baseURL(c),
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// writeError maps a phase error onto its HTTP status. Causes are logged
// by the orchestrator and never sent to clients.
func (s *Server) writeError(c *gin.Context, err error) {
	var pe *payflow.Error
	if !errors.As(err, &pe) {
		s.logger.Error(c.Request.Context(), "unexpected handler error", "error", err)
		pe = &payflow.Error{Kind: payflow.KindInternal, Msg: "Internal error."}
	}

	body := gin.H{"data": pe.Msg, "reason": string(pe.Kind)}
	if pe.Kind == payflow.KindUpstreamRejected && pe.Status != 0 {
		body["status"] = pe.Status
	}
	c.JSON(pe.Kind.HTTPStatus(), body)
}

// baseURL is scheme://host of the inbound request, honouring
// X-Forwarded-Proto from a fronting proxy.
func baseURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if p := c.GetHeader("X-Forwarded-Proto"); p == "http" || p == "https" {
		scheme = p
	}
	return scheme + "://" + c.Request.Host
}

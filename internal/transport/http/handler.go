package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/richardliu001/tipster-ledger/internal/repo"
	"github.com/richardliu001/tipster-ledger/internal/service"
	"github.com/shopspring/decimal"
)

func RegisterHandlers(r gin.IRoutes, svc *service.LedgerService) {
	r.POST("/v1/accounts", createAccountHandler(svc))
	r.GET("/v1/accounts/:id/wallet", walletHandler(svc))
	r.GET("/v1/accounts/:id/balance", balanceHandler(svc))
	r.GET("/v1/accounts/:id/transactions", historyHandler(svc))
	r.POST("/v1/accounts/:id/withdrawals", withdrawHandler(svc))
	r.GET("/v1/currencies", currenciesHandler(svc))
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, repo.ErrAccountNotFound), errors.Is(err, repo.ErrWalletNotFound):
		return http.StatusNotFound
	case errors.Is(err, repo.ErrAccountExists), errors.Is(err, repo.ErrReferenceConflict):
		return http.StatusConflict
	case errors.Is(err, repo.ErrInsufficientFunds), errors.Is(err, repo.ErrUnknownCurrency),
		errors.Is(err, service.ErrInvalidAmount):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func abort(c *gin.Context, err error) {
	status := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func accountID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid account id"})
		return 0, false
	}
	return id, true
}

type createAccountReq struct {
	UserID   uint64 `json:"user_id" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Currency string `json:"currency"`
}

func createAccountHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createAccountReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		acct, w, err := svc.CreateAccount(c, req.UserID, req.Email, req.Currency)
		if err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"account": acct, "wallet": w})
	}
}

func walletHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := accountID(c)
		if !ok {
			return
		}
		w, err := svc.GetWallet(c, id)
		if err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusOK, w)
	}
}

func balanceHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := accountID(c)
		if !ok {
			return
		}
		bal, err := svc.GetBalance(c, id)
		if err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"balance": bal})
	}
}

func historyHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := accountID(c)
		if !ok {
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		sinceStr := c.DefaultQuery("since", time.Now().Add(-30*24*time.Hour).Format(time.RFC3339))
		since, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
			return
		}
		txs, err := svc.GetHistory(c, id, limit, since)
		if err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusOK, txs)
	}
}

type withdrawReq struct {
	Amount    string `json:"amount" binding:"required"`
	Currency  string `json:"currency"`
	Channel   string `json:"channel"`
	Reference string `json:"reference"`
}

func withdrawHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := accountID(c)
		if !ok {
			return
		}
		var req withdrawReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		amt, err := decimal.NewFromString(req.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
			return
		}
		tx, err := svc.InitiateWithdrawal(c, service.WithdrawalInput{
			AccountID: id, Amount: amt, Currency: req.Currency,
			Channel: req.Channel, Reference: req.Reference,
		})
		if err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusCreated, tx)
	}
}

func currenciesHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		cs, err := svc.ListCurrencies(c)
		if err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusOK, cs)
	}
}

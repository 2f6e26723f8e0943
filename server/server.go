// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ordmarket/bitcoin"
	"ordmarket/bitcoin/chain"
	"ordmarket/bitcoin/txbuilder"
	"ordmarket/marketplace"
)

// Server exposes the marketplace service over HTTP.
type Server struct {
	service *marketplace.Service
	chain   *chain.Client
	log     *logrus.Logger
}

// New is a constructor for Server.
func New(service *marketplace.Service, chainClient *chain.Client, log *logrus.Logger) *Server {
	return &Server{
		service: service,
		chain:   chainClient,
		log:     log,
	}
}

// Router builds the gin engine with all marketplace routes.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api/v0")
	{
		api.POST("/seller-psbt", s.handleSellerPSBT)
		api.POST("/listings", s.handlePublishListing)
		api.POST("/listings/:id/cancel", s.handleCancelListing)
		api.POST("/buyer-psbt", s.handleBuyerPSBT)
		api.POST("/broadcast", s.handleBroadcast)
		api.POST("/dummy-psbt", s.handleDummyPSBT)
		api.GET("/listings", s.handleActiveListings)
		api.GET("/listings/:id", s.handleGetListing)
		api.GET("/fees", s.handleFeeRates)
	}

	return router
}

// Run starts the HTTP server on the given address.
func (s *Server) Run(addr string) error {
	s.log.WithField("addr", addr).Info("http server starting")
	return s.Router().Run(addr)
}

type sellerPSBTRequest struct {
	InscriptionID       string `json:"inscriptionId" binding:"required"`
	InscriptionOutPoint string `json:"inscriptionOutpoint" binding:"required"`
	PriceSats           int64  `json:"priceSats" binding:"required"`
	CustodyAddress      string `json:"custodyAddress" binding:"required"`
	PayoutAddress       string `json:"payoutAddress"`
	Network             string `json:"network" binding:"required"`
	SignedSellerPSBT    string `json:"signedSellerPsbt"`
}

func (s *Server) handleSellerPSBT(c *gin.Context) {
	_, parsed, ok := s.bindSellerRequest(c)
	if !ok {
		return
	}

	result, err := s.service.GenerateSellerPSBT(c.Request.Context(), parsed)
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"psbt":          result.PSBTBase64,
		"priceSats":     result.PriceSats,
		"utxoValueSats": result.OrdinalValue,
	})
}

func (s *Server) handlePublishListing(c *gin.Context) {
	req, parsed, ok := s.bindSellerRequest(c)
	if !ok {
		return
	}
	if req.SignedSellerPSBT == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "signedSellerPsbt is required"})
		return
	}

	listing, err := s.service.PublishListing(c.Request.Context(), marketplace.PublishRequest{
		SellerRequest:    parsed,
		SignedSellerPSBT: req.SignedSellerPSBT,
	})
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"listingId": listing.ID, "expiresAt": listing.ExpiresAt})
}

type cancelRequest struct {
	RequestingAddress string `json:"requestingAddress" binding:"required"`
}

func (s *Server) handleCancelListing(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid listing id"})
		return
	}

	var req cancelRequest
	if err = c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err = s.service.CancelListing(c.Request.Context(), id, req.RequestingAddress); err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

type buyerPSBTRequest struct {
	ListingID      string `json:"listingId" binding:"required"`
	PaymentAddress string `json:"paymentAddress" binding:"required"`
	ReceiveAddress string `json:"receiveAddress"`
	FeeLevel       string `json:"feeLevel" binding:"required"`
	Network        string `json:"network" binding:"required"`
}

func (s *Server) handleBuyerPSBT(c *gin.Context) {
	var req buyerPSBTRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := uuid.Parse(req.ListingID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid listing id"})
		return
	}

	network, err := bitcoin.ParseNetwork(req.Network)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.service.GenerateBuyerPSBT(c.Request.Context(), marketplace.BuyerRequest{
		ListingID:      id,
		PaymentAddress: req.PaymentAddress,
		ReceiveAddress: req.ReceiveAddress,
		FeeLevel:       bitcoin.FeeLevel(req.FeeLevel),
		Network:        network,
	})
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"psbt":       result.PSBTBase64,
		"priceSats":  result.PriceSats,
		"feeSats":    result.FeeSats,
		"feeRate":    result.FeeRate,
		"changeSats": result.ChangeSats,
		"dummyNew":   result.DummyNew,
	})
}

type broadcastRequest struct {
	PSBT    string `json:"psbt" binding:"required"`
	Network string `json:"network" binding:"required"`
}

func (s *Server) handleBroadcast(c *gin.Context) {
	var req broadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	network, err := bitcoin.ParseNetwork(req.Network)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.service.Broadcast(c.Request.Context(), req.PSBT, network)
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

type dummyPSBTRequest struct {
	PayerAddress string `json:"payerAddress" binding:"required"`
	Count        int    `json:"count" binding:"required"`
	FeeLevel     string `json:"feeLevel" binding:"required"`
	Network      string `json:"network" binding:"required"`
}

func (s *Server) handleDummyPSBT(c *gin.Context) {
	var req dummyPSBTRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	network, err := bitcoin.ParseNetwork(req.Network)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.service.GenerateDummyPSBT(c.Request.Context(), marketplace.DummyMintRequest{
		PayerAddress: req.PayerAddress,
		Count:        req.Count,
		FeeLevel:     bitcoin.FeeLevel(req.FeeLevel),
		Network:      network,
	})
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"psbt":       result.PSBTBase64,
		"feeSats":    result.FeeSats,
		"feeRate":    result.FeeRate,
		"changeSats": result.ChangeSats,
	})
}

func (s *Server) handleActiveListings(c *gin.Context) {
	network, err := bitcoin.ParseNetwork(c.DefaultQuery("network", string(bitcoin.NetworkMainnet)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	listings, err := s.service.ActiveListings(c.Request.Context(), network)
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"listings": listings})
}

func (s *Server) handleGetListing(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid listing id"})
		return
	}

	listing, err := s.service.GetListing(c.Request.Context(), id)
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, listing)
}

func (s *Server) handleFeeRates(c *gin.Context) {
	network, err := bitcoin.ParseNetwork(c.DefaultQuery("network", string(bitcoin.NetworkMainnet)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, s.chain.GetFeeRates(c.Request.Context(), network))
}

// bindSellerRequest parses the shared seller request body.
func (s *Server) bindSellerRequest(c *gin.Context) (sellerPSBTRequest, marketplace.SellerRequest, bool) {
	var req sellerPSBTRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return req, marketplace.SellerRequest{}, false
	}

	outPoint, err := bitcoin.ParseOutPoint(req.InscriptionOutPoint)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return req, marketplace.SellerRequest{}, false
	}

	network, err := bitcoin.ParseNetwork(req.Network)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return req, marketplace.SellerRequest{}, false
	}

	return req, marketplace.SellerRequest{
		InscriptionID:       req.InscriptionID,
		InscriptionOutPoint: outPoint,
		PriceSats:           req.PriceSats,
		CustodyAddress:      req.CustodyAddress,
		PayoutAddress:       req.PayoutAddress,
		Network:             network,
	}, true
}

// renderError maps error kinds onto HTTP statuses at the boundary.
func (s *Server) renderError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, bitcoin.ErrInvalidAddress),
		errors.Is(err, bitcoin.ErrNetworkMismatch),
		errors.Is(err, bitcoin.ErrNotOrdinalCompatible),
		errors.Is(err, bitcoin.ErrMalformedPSBT),
		errors.Is(err, bitcoin.ErrMalformedSellerPSBT),
		errors.Is(err, bitcoin.ErrPSBTPriceMismatch),
		errors.Is(err, bitcoin.ErrSellerUnsigned),
		errors.Is(err, bitcoin.ErrUnknownFeeLevel):
		status = http.StatusBadRequest
	case errors.Is(err, bitcoin.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, marketplace.ErrNotAuthorized):
		status = http.StatusForbidden
	case errors.Is(err, marketplace.ErrAlreadyListed),
		errors.Is(err, marketplace.ErrNotActive),
		errors.Is(err, marketplace.ErrSelfBuy),
		errors.Is(err, bitcoin.ErrNotOwner):
		status = http.StatusConflict
	case errors.Is(err, txbuilder.ErrInsufficientCardinalFunds):
		status = http.StatusPaymentRequired
	case errors.Is(err, txbuilder.ErrFinalizationFailed),
		errors.Is(err, bitcoin.ErrInputsMissingOrSpent),
		errors.Is(err, bitcoin.ErrInsufficientFee),
		errors.Is(err, bitcoin.ErrScriptVerifyFailed),
		errors.Is(err, bitcoin.ErrMempoolConflict):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, bitcoin.ErrBackendExhausted),
		errors.Is(err, bitcoin.ErrChainLookupFailed):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		s.log.WithError(err).Error("request failed")
	}

	c.JSON(status, gin.H{"error": err.Error()})
}

package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"provision-service/internal/orchestrator"
	"provision-service/internal/provision"
	"provision-service/internal/tenant"
	"provision-service/pkg/logger"
	"provision-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

var orch *orchestrator.Orchestrator

// Init wires the orchestrator into the handlers. Called once at startup.
func Init(o *orchestrator.Orchestrator) {
	orch = o
}

// CreateStore provisions a new tenant store end to end
func CreateStore(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		TenantName string `json:"tenant_name"`
		Theme      string `json:"theme"`
		SiteType   string `json:"site_type"`
		AdminEmail string `json:"admin_email"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse create-store request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":             "invalid_request",
			"error_description": "Could not parse request body",
		})
	}
	if req.SiteType == "" {
		req.SiteType = provision.SiteTypeEcommerce
	}
	if req.Theme == "" {
		req.Theme = "default"
	}

	log.Info("Create store requested",
		zap.String("tenant", req.TenantName),
		zap.String("theme", req.Theme),
		zap.String("site_type", req.SiteType))

	res, err := orch.Create(c.Request().Context(), orchestrator.CreateRequest{
		Name:       req.TenantName,
		Theme:      req.Theme,
		SiteType:   req.SiteType,
		AdminEmail: req.AdminEmail,
	})
	if err != nil {
		prometheus.TenantsProvisionedCounter.WithLabelValues(req.SiteType, "failure").Inc()
		log.Error("Create store failed", zap.String("tenant", req.TenantName), zap.Error(err))
		return writeError(c, err)
	}

	prometheus.TenantsProvisionedCounter.WithLabelValues(req.SiteType, "success").Inc()

	// The plaintext admin password is shown to the caller here and
	// nowhere else.
	return c.JSON(http.StatusCreated, echo.Map{
		"status":         "success",
		"message":        fmt.Sprintf("Store '%s' creation complete.", res.Name),
		"subdomains":     res.Subdomains,
		"admin_email":    res.AdminEmail,
		"admin_password": res.AdminPassword,
	})
}

// DeleteStore tears down a tenant's compute, database and registry row
func DeleteStore(c echo.Context) error {
	log := logger.FromContext(c)

	req, ok := bindTenantName(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":             "invalid_request",
			"error_description": "Could not parse request body",
		})
	}

	log.Info("Delete store requested", zap.String("tenant", req))
	if err := orch.Delete(c.Request().Context(), req); err != nil {
		prometheus.TenantsDeletedCounter.WithLabelValues("failure").Inc()
		log.Error("Delete store failed", zap.String("tenant", req), zap.Error(err))
		return writeError(c, err)
	}

	prometheus.TenantsDeletedCounter.WithLabelValues("success").Inc()
	return c.JSON(http.StatusOK, echo.Map{
		"status":  "success",
		"message": fmt.Sprintf("Store '%s' completely removed.", req),
	})
}

// SuspendStore stops a tenant's compute processes in place
func SuspendStore(c echo.Context) error {
	log := logger.FromContext(c)

	req, ok := bindTenantName(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":             "invalid_request",
			"error_description": "Could not parse request body",
		})
	}

	log.Info("Suspend store requested", zap.String("tenant", req))
	if err := orch.Suspend(c.Request().Context(), req); err != nil {
		log.Error("Suspend store failed", zap.String("tenant", req), zap.Error(err))
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":  "success",
		"message": fmt.Sprintf("Store '%s' suspended.", req),
	})
}

// ResumeStore restarts a suspended tenant
func ResumeStore(c echo.Context) error {
	log := logger.FromContext(c)

	req, ok := bindTenantName(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":             "invalid_request",
			"error_description": "Could not parse request body",
		})
	}

	log.Info("Resume store requested", zap.String("tenant", req))
	if err := orch.Resume(c.Request().Context(), req); err != nil {
		log.Error("Resume store failed", zap.String("tenant", req), zap.Error(err))
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":  "success",
		"message": fmt.Sprintf("Store '%s' resumed.", req),
	})
}

// SeedAdmin re-runs admin seeding for an existing tenant
func SeedAdmin(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		TenantName    string `json:"tenant_name"`
		AdminEmail    string `json:"admin_email"`
		AdminPassword string `json:"admin_password"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":             "invalid_request",
			"error_description": "Could not parse request body",
		})
	}

	log.Info("Seed admin requested", zap.String("tenant", req.TenantName))
	res, err := orch.SeedAdmin(c.Request().Context(), orchestrator.SeedRequest{
		Name:     req.TenantName,
		Email:    req.AdminEmail,
		Password: req.AdminPassword,
	})
	if err != nil {
		log.Error("Seed admin failed", zap.String("tenant", req.TenantName), zap.Error(err))
		return writeError(c, err)
	}

	return c.JSON(http.StatusAccepted, echo.Map{
		"status":         "success",
		"message":        fmt.Sprintf("Seeding dispatched for store '%s'.", res.Name),
		"admin_email":    res.AdminEmail,
		"admin_password": res.AdminPassword,
	})
}

// StoresStatus returns registry rows alongside live compute instances
func StoresStatus(c echo.Context) error {
	log := logger.FromContext(c)

	res, err := orch.Status(c.Request().Context())
	if err != nil {
		log.Error("Get store status failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, echo.Map{
			"error":             "compute_unavailable",
			"error_description": "Provisioning orchestrator unavailable",
		})
	}

	return c.JSON(http.StatusOK, res)
}

// StoreLogs fetches the tail of a tenant's compute logs
func StoreLogs(c echo.Context) error {
	log := logger.FromContext(c)

	name := c.Param("name")
	lines, _ := strconv.Atoi(c.QueryParam("lines"))

	out, err := orch.Logs(c.Request().Context(), name, lines)
	if err != nil {
		log.Error("Get store logs failed", zap.String("tenant", name), zap.Error(err))
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"tenant": name,
		"logs":   out,
	})
}

func bindTenantName(c echo.Context) (string, bool) {
	var req struct {
		TenantName string `json:"tenant_name"`
	}
	if err := c.Bind(&req); err != nil {
		return "", false
	}
	return req.TenantName, true
}

// writeError translates the error taxonomy to an HTTP response.
func writeError(c echo.Context, err error) error {
	var verr *tenant.ValidationError
	if errors.As(err, &verr) {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":             "validation_error",
			"error_description": verr.Error(),
		})
	}

	var nf *provision.NotFoundError
	if errors.As(err, &nf) {
		return c.JSON(http.StatusNotFound, echo.Map{
			"error":             "not_found",
			"error_description": nf.Error(),
		})
	}

	var cf *provision.ConflictError
	if errors.As(err, &cf) {
		return c.JSON(http.StatusConflict, echo.Map{
			"error":             "conflict",
			"error_description": cf.Error(),
		})
	}

	var terr *provision.TimeoutError
	if errors.As(err, &terr) {
		return c.JSON(http.StatusGatewayTimeout, echo.Map{
			"error":             "timeout",
			"error_description": terr.Error(),
		})
	}

	return c.JSON(http.StatusInternalServerError, echo.Map{
		"error":             "server_error",
		"error_description": err.Error(),
	})
}

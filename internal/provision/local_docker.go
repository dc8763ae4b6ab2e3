package provision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"provision-service/internal/tenant"
	"provision-service/pkg/config"

	"go.uber.org/zap"
)

// edgeService is the compose service name of the tenant's reverse proxy.
const edgeService = "edge"

// RunResult captures the output of an external command.
type RunResult struct {
	Stdout string
	Stderr string
}

// commandRunner abstracts external command execution so tests can fake
// the container CLI.
type commandRunner interface {
	Run(ctx context.Context, dir string, timeout time.Duration, name string, args ...string) (RunResult, error)
}

// errDeadline marks a command killed by its bounded timeout.
var errDeadline = errors.New("command deadline exceeded")

type execRunner struct{}

func (execRunner) Run(ctx context.Context, dir string, timeout time.Duration, name string, args ...string) (RunResult, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := RunResult{
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}
	if cctx.Err() == context.DeadlineExceeded {
		return res, errDeadline
	}
	return res, err
}

// LocalDockerProvisioner materializes blueprints on local storage and
// drives the docker compose CLI against each tenant's working
// directory. Assumes the control plane has access to the host's Docker
// socket.
type LocalDockerProvisioner struct {
	cfg *config.Config
	log *zap.Logger
	run commandRunner
}

var _ Compute = (*LocalDockerProvisioner)(nil)

func NewLocalDockerProvisioner(cfg *config.Config, log *zap.Logger) *LocalDockerProvisioner {
	return &LocalDockerProvisioner{cfg: cfg, log: log, run: execRunner{}}
}

func (p *LocalDockerProvisioner) tenantDir(name tenant.Name) string {
	return filepath.Join(p.cfg.Platform.TenantsDir, name.String())
}

func (p *LocalDockerProvisioner) containerName(name tenant.Name) string {
	return p.cfg.Platform.ContainerPrefix + name.String()
}

// StartTenant copies the blueprint, renders the env file, and brings
// the tenant's compose project up with a bounded timeout.
func (p *LocalDockerProvisioner) StartTenant(ctx context.Context, name tenant.Name, theme string, creds Credentials, siteType string) error {
	tenantDir, err := materializeBlueprint(p.cfg.Platform.BlueprintsDir, p.cfg.Platform.TenantsDir, name, siteType)
	if err != nil {
		return err
	}

	if err := renderEnvFile(tenantDir, p.cfg.Platform.Domain, theme, name, creds, siteType); err != nil {
		return fmt.Errorf("failed to render env file for tenant %s: %w", name, err)
	}

	p.log.Info("Starting tenant containers",
		zap.String("tenant", name.String()),
		zap.String("dir", tenantDir))

	res, err := p.run.Run(ctx, tenantDir, p.cfg.Compute.UpTimeout, "docker", "compose", "up", "-d")
	if err != nil {
		if errors.Is(err, errDeadline) {
			return &TimeoutError{Op: "docker compose up", Tenant: name.String(), Timeout: p.cfg.Compute.UpTimeout}
		}
		return &ProvisionError{Op: "docker compose up", Tenant: name.String(), Stderr: res.Stderr, Err: err}
	}

	p.log.Info("Tenant containers started",
		zap.String("tenant", name.String()),
		zap.String("stdout", res.Stdout))
	return nil
}

// StopTenant suspends the tenant's processes in place. The working
// directory and database are untouched.
func (p *LocalDockerProvisioner) StopTenant(ctx context.Context, name tenant.Name) error {
	return p.composeToggle(ctx, name, "stop")
}

// ResumeTenant restarts suspended processes.
func (p *LocalDockerProvisioner) ResumeTenant(ctx context.Context, name tenant.Name) error {
	return p.composeToggle(ctx, name, "start")
}

func (p *LocalDockerProvisioner) composeToggle(ctx context.Context, name tenant.Name, verb string) error {
	dir := p.tenantDir(name)
	if _, err := os.Stat(dir); err != nil {
		return &NotFoundError{Kind: "tenant", Name: name.String()}
	}

	op := "docker compose " + verb
	res, err := p.run.Run(ctx, dir, p.cfg.Compute.StopTimeout, "docker", "compose", verb)
	if err != nil {
		if errors.Is(err, errDeadline) {
			return &TimeoutError{Op: op, Tenant: name.String(), Timeout: p.cfg.Compute.StopTimeout}
		}
		return &ProvisionError{Op: op, Tenant: name.String(), Stderr: res.Stderr, Err: err}
	}
	return nil
}

// DeleteTenant takes the compose project down (removing ephemeral
// volumes) then removes the working directory. Returns false without
// error if the directory never existed.
func (p *LocalDockerProvisioner) DeleteTenant(ctx context.Context, name tenant.Name) (bool, error) {
	dir := p.tenantDir(name)
	if _, err := os.Stat(dir); err != nil {
		p.log.Warn("Tenant directory not found, skipping teardown",
			zap.String("tenant", name.String()),
			zap.String("path", dir))
		return false, nil
	}

	p.log.Info("Taking down tenant containers", zap.String("tenant", name.String()))
	res, err := p.run.Run(ctx, dir, p.cfg.Compute.DownTimeout, "docker", "compose", "down", "-v")
	if err != nil {
		if errors.Is(err, errDeadline) {
			return false, &TimeoutError{Op: "docker compose down", Tenant: name.String(), Timeout: p.cfg.Compute.DownTimeout}
		}
		return false, &ProvisionError{Op: "docker compose down", Tenant: name.String(), Stderr: res.Stderr, Err: err}
	}

	if err := os.RemoveAll(dir); err != nil {
		return false, fmt.Errorf("failed to remove tenant directory %s: %w", dir, err)
	}
	p.log.Info("Tenant directory removed", zap.String("path", dir))
	return true, nil
}

// Status lists live containers belonging to this platform, filtered by
// the fixed container naming convention, with each instance's own
// health-probe result resolved.
func (p *LocalDockerProvisioner) Status(ctx context.Context) ([]InstanceStatus, error) {
	res, err := p.run.Run(ctx, "", p.cfg.Compute.ExecTimeout, "docker",
		"ps", "--filter", "name="+p.cfg.Platform.ContainerPrefix,
		"--format", "{{.ID}};{{.Names}};{{.State}}")
	if err != nil {
		return nil, &ProvisionError{Op: "docker ps", Stderr: res.Stderr, Err: err}
	}

	var statuses []InstanceStatus
	for _, line := range strings.Split(res.Stdout, "\n") {
		parts := strings.SplitN(strings.TrimSpace(line), ";", 3)
		if len(parts) != 3 || parts[0] == "" {
			continue
		}
		health, err := p.inspectHealth(ctx, parts[1])
		if err != nil {
			health = HealthNone
		}
		statuses = append(statuses, InstanceStatus{
			ID:     parts[0],
			Name:   parts[1],
			State:  parts[2],
			Health: health,
		})
	}
	return statuses, nil
}

// Logs fetches the tail of the tenant's compose logs.
func (p *LocalDockerProvisioner) Logs(ctx context.Context, name tenant.Name, lines int) (string, error) {
	dir := p.tenantDir(name)
	if _, err := os.Stat(dir); err != nil {
		return "", &NotFoundError{Kind: "tenant", Name: name.String()}
	}

	res, err := p.run.Run(ctx, dir, p.cfg.Compute.ExecTimeout, "docker",
		"compose", "logs", "--no-color", "--tail", fmt.Sprintf("%d", lines))
	if err != nil {
		return "", &ProvisionError{Op: "docker compose logs", Tenant: name.String(), Stderr: res.Stderr, Err: err}
	}
	return res.Stdout, nil
}

// HealthOf resolves the tenant's primary container health.
func (p *LocalDockerProvisioner) HealthOf(ctx context.Context, name tenant.Name) (Health, error) {
	return p.inspectHealth(ctx, p.containerName(name))
}

func (p *LocalDockerProvisioner) inspectHealth(ctx context.Context, container string) (Health, error) {
	res, err := p.run.Run(ctx, "", p.cfg.Compute.ExecTimeout, "docker",
		"inspect", "-f", "{{if .State.Health}}{{.State.Health.Status}}{{else}}none{{end}}", container)
	if err != nil {
		return HealthNone, &ProvisionError{Op: "docker inspect", Tenant: container, Stderr: res.Stderr, Err: err}
	}

	switch Health(strings.TrimSpace(res.Stdout)) {
	case HealthHealthy:
		return HealthHealthy, nil
	case HealthStarting:
		return HealthStarting, nil
	case HealthUnhealthy:
		return HealthUnhealthy, nil
	default:
		return HealthNone, nil
	}
}

// Exec runs a management command inside one of the tenant's compose
// services and returns its stdout.
func (p *LocalDockerProvisioner) Exec(ctx context.Context, name tenant.Name, service string, argv []string) (string, error) {
	dir := p.tenantDir(name)
	if _, err := os.Stat(dir); err != nil {
		return "", &NotFoundError{Kind: "tenant", Name: name.String()}
	}

	args := append([]string{"compose", "exec", "-T", service}, argv...)
	res, err := p.run.Run(ctx, dir, p.cfg.Compute.ExecTimeout, "docker", args...)
	if err != nil {
		if errors.Is(err, errDeadline) {
			return "", &TimeoutError{Op: "docker compose exec", Tenant: name.String(), Timeout: p.cfg.Compute.ExecTimeout}
		}
		return "", &ProvisionError{Op: "docker compose exec", Tenant: name.String(), Stderr: res.Stderr, Err: err}
	}
	return res.Stdout, nil
}

// ReloadEdge gracefully reloads the tenant's reverse proxy so rewritten
// configuration takes effect without downtime.
func (p *LocalDockerProvisioner) ReloadEdge(ctx context.Context, name tenant.Name) error {
	_, err := p.Exec(ctx, name, edgeService, []string{"caddy", "reload", "--config", "/etc/caddy/Caddyfile"})
	return err
}

package provision

import (
	"context"

	"provision-service/internal/tenant"
	"provision-service/pkg/config"

	"go.uber.org/zap"
)

// KubernetesProvisioner would submit declarative manifests (Namespace,
// Deployment, Service, Ingress) to a cluster scheduler instead of
// driving a local container CLI. It satisfies the Compute capability
// set but is not yet implemented; selecting it via COMPUTE_BACKEND is
// reserved for a later phase.
type KubernetesProvisioner struct {
	cfg *config.Config
	log *zap.Logger
}

var _ Compute = (*KubernetesProvisioner)(nil)

func NewKubernetesProvisioner(cfg *config.Config, log *zap.Logger) *KubernetesProvisioner {
	return &KubernetesProvisioner{cfg: cfg, log: log}
}

func (p *KubernetesProvisioner) notImplemented(op string, name tenant.Name) error {
	p.log.Warn("Kubernetes backend not implemented",
		zap.String("op", op),
		zap.String("tenant", name.String()))
	return &ProvisionError{Op: op, Tenant: name.String(), Stderr: "kubernetes backend not implemented"}
}

func (p *KubernetesProvisioner) StartTenant(ctx context.Context, name tenant.Name, theme string, creds Credentials, siteType string) error {
	return p.notImplemented("start", name)
}

func (p *KubernetesProvisioner) StopTenant(ctx context.Context, name tenant.Name) error {
	return p.notImplemented("stop", name)
}

func (p *KubernetesProvisioner) ResumeTenant(ctx context.Context, name tenant.Name) error {
	return p.notImplemented("resume", name)
}

func (p *KubernetesProvisioner) DeleteTenant(ctx context.Context, name tenant.Name) (bool, error) {
	return false, p.notImplemented("delete", name)
}

func (p *KubernetesProvisioner) Status(ctx context.Context) ([]InstanceStatus, error) {
	return []InstanceStatus{}, nil
}

func (p *KubernetesProvisioner) Logs(ctx context.Context, name tenant.Name, lines int) (string, error) {
	return "", p.notImplemented("logs", name)
}

func (p *KubernetesProvisioner) HealthOf(ctx context.Context, name tenant.Name) (Health, error) {
	return HealthNone, p.notImplemented("health", name)
}

func (p *KubernetesProvisioner) Exec(ctx context.Context, name tenant.Name, service string, argv []string) (string, error) {
	return "", p.notImplemented("exec", name)
}

func (p *KubernetesProvisioner) ReloadEdge(ctx context.Context, name tenant.Name) error {
	return p.notImplemented("reload-edge", name)
}

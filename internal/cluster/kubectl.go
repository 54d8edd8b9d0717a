package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rollout-k8s/rolloutctl/internal/release"
)

// KubectlClient implements [Interface] by shelling out to kubectl with
// optional kubeconfig, context and namespace selection. Resource documents are
// canonical JSON, which kubectl accepts directly on stdin.
type KubectlClient struct {
	Kubeconfig string
	Context    string
	// Namespace is the environment's target namespace, used for documents
	// that do not pin one in their metadata.
	Namespace string
}

// NewKubectlClient constructs a kubectl-backed cluster client.
func NewKubectlClient(kubeconfig, kubeContext, namespace string) *KubectlClient {
	return &KubectlClient{
		Kubeconfig: kubeconfig,
		Context:    kubeContext,
		Namespace:  namespace,
	}
}

// Apply applies the document via kubectl apply -f -.
func (c *KubectlClient) Apply(ctx context.Context, doc release.ResourceDocument) (ResourceStatus, error) {
	out, err := c.runKubectl(ctx, doc.Raw, c.applyArgs(doc)...)
	if err != nil {
		return ResourceStatus{}, err
	}
	return ResourceStatus{
		Ref:       doc.Ref(),
		Operation: parseApplyOperation(string(out)),
	}, nil
}

// applyArgs builds the apply invocation. The environment namespace is passed
// only for documents without their own: kubectl rejects -n when it conflicts
// with metadata.namespace.
func (c *KubectlClient) applyArgs(doc release.ResourceDocument) []string {
	args := []string{"apply", "-f", "-"}
	if doc.Namespace == "" && c.Namespace != "" {
		args = append(args, "-n", c.Namespace)
	}
	return args
}

// Health reads the resource back and derives a readiness signal from its
// reported status conditions. Resources without a status block (ConfigMaps,
// Secrets, Services) are ready as soon as they exist.
func (c *KubectlClient) Health(ctx context.Context, doc release.ResourceDocument) (HealthState, error) {
	out, err := c.runKubectl(ctx, nil, c.healthArgs(doc)...)
	if err != nil {
		return HealthUnknown, err
	}

	var obj struct {
		Status struct {
			Conditions []condition `json:"conditions"`
		} `json:"status"`
	}
	if err := json.Unmarshal(out, &obj); err != nil {
		return HealthUnknown, fmt.Errorf("decode %s status: %w", doc.Ref(), err)
	}
	return healthFromConditions(obj.Status.Conditions), nil
}

// healthArgs builds the readback invocation, polling the document's own
// namespace and falling back to the environment's.
func (c *KubectlClient) healthArgs(doc release.ResourceDocument) []string {
	args := []string{"get", fmt.Sprintf("%s/%s", strings.ToLower(doc.Kind), doc.Name), "-o", "json"}
	switch {
	case doc.Namespace != "":
		args = append(args, "-n", doc.Namespace)
	case c.Namespace != "":
		args = append(args, "-n", c.Namespace)
	}
	return args
}

type condition struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

func healthFromConditions(conditions []condition) HealthState {
	if len(conditions) == 0 {
		return HealthReady
	}
	for _, cond := range conditions {
		if cond.Type == "ReplicaFailure" && cond.Status == "True" {
			return HealthDegraded
		}
	}
	for _, cond := range conditions {
		switch cond.Type {
		case "Available", "Ready":
			if cond.Status == "True" {
				return HealthReady
			}
		}
	}
	return HealthPending
}

// parseApplyOperation extracts the trailing verb from kubectl apply output,
// e.g. "deployment.apps/webapp configured" -> "configured".
func parseApplyOperation(out string) string {
	line := strings.TrimSpace(out)
	if idx := strings.LastIndexByte(line, ' '); idx >= 0 {
		return line[idx+1:]
	}
	return line
}

func (c *KubectlClient) runKubectl(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	cmdArgs := make([]string, 0, len(args)+2)
	if c.Context != "" {
		cmdArgs = append(cmdArgs, "--context", c.Context)
	}
	cmdArgs = append(cmdArgs, args...)

	cmd := exec.CommandContext(ctx, "kubectl", cmdArgs...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	if c.Kubeconfig != "" {
		env := os.Environ()
		env = append(env, "KUBECONFIG="+c.Kubeconfig)
		cmd.Env = env
	}

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("kubectl %v failed: %s: %w", args, strings.TrimSpace(stderr.String()), err)
	}
	return stdout.Bytes(), nil
}

package controlplane

import (
	"context"
	"fmt"

	"github.com/dosanma1/zonke-cli/internal/ledger"
	"github.com/dosanma1/zonke-cli/internal/upload"
)

// DefaultExpiresIn is the lifetime of signed upload URLs, in seconds.
const DefaultExpiresIn = 60

// CreateRequest defines a new preview environment.
type CreateRequest struct {
	UserID        string `json:"userId,omitempty"`
	Framework     string `json:"framework"`
	AWSHostedZone string `json:"awsHostedZone"`
}

// CreateEnvironment defines a preview environment. The returned
// environment has no versions.
func (c *Client) CreateEnvironment(ctx context.Context, req CreateRequest) (*ledger.Environment, error) {
	var env ledger.Environment
	if err := c.post(ctx, "create", req, &env); err != nil {
		return nil, err
	}
	if env.EnvironmentID == "" {
		return nil, fmt.Errorf("create response is missing the environment id")
	}
	return &env, nil
}

// GetEnvironment returns the environment with the given id.
func (c *Client) GetEnvironment(ctx context.Context, environmentID string) (*ledger.Environment, error) {
	var env ledger.Environment
	if err := c.post(ctx, "", map[string]string{"environmentId": environmentID}, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// EndpointRequest asks for signed upload targets.
type EndpointRequest struct {
	EnvironmentID string `json:"environmentId"`
	Message       string `json:"message,omitempty"`
	// ExpiresIn is the URL lifetime in seconds; zero selects DefaultExpiresIn.
	ExpiresIn int `json:"expiresIn"`
}

// DeploymentEndpoint holds the targets for one deployment. Either Client
// is set, with Server set when the environment accepts a server bundle,
// or only Combined is set for environments taking a single archive.
type DeploymentEndpoint struct {
	SourceVersion string
	Client        upload.Target
	Server        upload.Target
	Combined      string
	MaxSize       int64
}

// Split reports whether client and server bundles are uploaded separately.
func (d *DeploymentEndpoint) Split() bool {
	return d.Client != nil
}

type postConfiguration struct {
	PresignedURL string         `json:"presignedUrl"`
	Fields       []upload.Field `json:"fields"`
}

type deploymentEndpointResponse struct {
	SourceVersion                          string             `json:"sourceVersion"`
	PresignedDeploymentEndpoint            string             `json:"presignedDeploymentEndpoint"`
	PresignedClientDeploymentEndpoint      string             `json:"presignedClientDeploymentEndpoint"`
	PresignedServerDeploymentEndpoint      string             `json:"presignedServerDeploymentEndpoint"`
	MaxDeploymentSize                      int64              `json:"maxDeploymentSize"`
	PresignedClientDeploymentConfiguration *postConfiguration `json:"presignedClientDeploymentConfiguration"`
	PresignedServerDeploymentConfiguration *postConfiguration `json:"presignedServerDeploymentConfiguration"`
}

// target prefers the signed POST configuration over the PUT endpoint.
func (r *deploymentEndpointResponse) target(config *postConfiguration, endpoint string) upload.Target {
	if config != nil && config.PresignedURL != "" {
		return upload.Multipart{
			URL:          config.PresignedURL,
			Fields:       config.Fields,
			MaxTotalSize: r.MaxDeploymentSize,
		}
	}
	if endpoint != "" {
		return upload.Direct{Endpoint: endpoint}
	}
	return nil
}

// DeploymentEndpoint requests signed upload targets for a new deployment.
func (c *Client) DeploymentEndpoint(ctx context.Context, req EndpointRequest) (*DeploymentEndpoint, error) {
	if req.ExpiresIn <= 0 {
		req.ExpiresIn = DefaultExpiresIn
	}

	var resp deploymentEndpointResponse
	if err := c.post(ctx, "deployment-endpoint", req, &resp); err != nil {
		return nil, err
	}

	endpoint := &DeploymentEndpoint{
		SourceVersion: resp.SourceVersion,
		Client:        resp.target(resp.PresignedClientDeploymentConfiguration, resp.PresignedClientDeploymentEndpoint),
		Server:        resp.target(resp.PresignedServerDeploymentConfiguration, resp.PresignedServerDeploymentEndpoint),
		Combined:      resp.PresignedDeploymentEndpoint,
		MaxSize:       resp.MaxDeploymentSize,
	}

	switch {
	case endpoint.Client != nil && endpoint.SourceVersion == "":
		return nil, fmt.Errorf("deployment-endpoint response is missing the source version")
	case endpoint.Client == nil && endpoint.Combined == "":
		return nil, fmt.Errorf("deployment-endpoint response contains no upload target")
	}

	return endpoint, nil
}

// CompleteRequest finalizes a split deployment.
type CompleteRequest struct {
	EnvironmentID string `json:"environmentId"`
	SourceVersion string `json:"sourceVersion"`
	ClientVersion string `json:"clientVersion"`
	ServerVersion string `json:"serverVersion,omitempty"`
	HasIndexHTML  bool   `json:"hasIndexHtml"`
}

// CompleteDeployment tells the control plane every archive is uploaded.
func (c *Client) CompleteDeployment(ctx context.Context, req CompleteRequest) error {
	return c.post(ctx, "complete-deployment", req, nil)
}

// SetDeploymentMessage attaches a message to a deployed version.
func (c *Client) SetDeploymentMessage(ctx context.Context, environmentID, sourceVersion, message string) error {
	return c.post(ctx, "set-deployment-message", map[string]string{
		"message":       message,
		"environmentId": environmentID,
		"sourceVersion": sourceVersion,
	}, nil)
}

// State is the lifecycle of a deployment.
type State string

const (
	StateScheduled  State = "SCHEDULED"
	StateInProgress State = "IN_PROGRESS"
	StateSuccess    State = "SUCCESS"
	StateFailed     State = "FAILED"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateScheduled, StateInProgress, StateSuccess, StateFailed:
		return true
	}
	return false
}

// DeploymentStatus is the control plane's view of one deployment.
type DeploymentStatus struct {
	EnvironmentID string `json:"environmentId"`
	SourceVersion string `json:"sourceVersion"`
	Status        State  `json:"status"`
	Error         string `json:"error,omitempty"`
}

// DeploymentStatus returns the status of the given version.
func (c *Client) DeploymentStatus(ctx context.Context, environmentID, sourceVersion string) (*DeploymentStatus, error) {
	var status DeploymentStatus
	if err := c.post(ctx, "deployment-status", map[string]string{
		"environmentId": environmentID,
		"sourceVersion": sourceVersion,
	}, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// DeployVersion redeploys an earlier version. The returned status names
// the new version id.
func (c *Client) DeployVersion(ctx context.Context, environmentID, sourceVersion string) (*DeploymentStatus, error) {
	var status DeploymentStatus
	if err := c.post(ctx, "deploy-version", map[string]string{
		"environmentId": environmentID,
		"sourceVersion": sourceVersion,
	}, &status); err != nil {
		return nil, err
	}
	if status.SourceVersion == "" {
		return nil, fmt.Errorf("deploy-version response is missing the new source version")
	}
	return &status, nil
}

// DeleteEnvironment deletes an environment and all of its versions.
func (c *Client) DeleteEnvironment(ctx context.Context, environmentID string) error {
	return c.post(ctx, "delete", map[string]string{"environmentId": environmentID}, nil)
}

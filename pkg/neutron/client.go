// Package neutron talks to OpenStack Keystone and Neutron on behalf of the
// security group controller.
package neutron

import (
	"context"
	"fmt"
	"strings"

	"github.com/gophercloud/gophercloud/v2"
	"github.com/gophercloud/gophercloud/v2/openstack"
	"github.com/gophercloud/gophercloud/v2/openstack/networking/v2/extensions/portsecurity"
	"github.com/gophercloud/gophercloud/v2/openstack/networking/v2/ports"
	"k8s.io/klog/v2"

	"github.com/aojea/netsec-controller/pkg/config"
	"github.com/aojea/netsec-controller/pkg/networkpolicy"
)

// Client lists and updates Neutron ports.
type Client struct {
	network *gophercloud.ServiceClient
}

var _ networkpolicy.PortClient = &Client{}

// port is a Neutron port together with its port security extension attribute.
type port struct {
	ports.Port
	portsecurity.PortSecurityExt
}

// Authenticate obtains a Keystone v3 token with the configured credentials and
// returns a client for the Neutron endpoint of the service catalog.
func Authenticate(ctx context.Context, ks config.Keystone) (*Client, error) {
	klog.InfoS("Authenticating against keystone", "authURL", ks.AuthURL, "user", ks.Username, "project", ks.ProjectName)
	opts := gophercloud.AuthOptions{
		IdentityEndpoint: identityEndpoint(ks.AuthURL),
		Username:         ks.Username,
		Password:         ks.Password,
		DomainName:       ks.UserDomainName,
		AllowReauth:      true,
		Scope: &gophercloud.AuthScope{
			ProjectName: ks.ProjectName,
			DomainName:  ks.ProjectDomainName,
		},
	}
	provider, err := openstack.AuthenticatedClient(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("authenticate against keystone: %w", err)
	}

	network, err := openstack.NewNetworkV2(provider, gophercloud.EndpointOpts{
		Region:       ks.RegionName,
		Availability: gophercloud.Availability(ks.Interface),
	})
	if err != nil {
		return nil, fmt.Errorf("find network endpoint: %w", err)
	}
	klog.InfoS("Got keystone token", "networkEndpoint", network.Endpoint)
	return NewClient(network), nil
}

// NewClient returns a Client for an already authenticated network service client.
func NewClient(network *gophercloud.ServiceClient) *Client {
	return &Client{network: network}
}

// ListPorts returns the ports of the network. Neutron returns every port of the
// network in one page when no limit is requested.
func (c *Client) ListPorts(ctx context.Context, networkID string) ([]networkpolicy.Port, error) {
	query, err := ports.ListOpts{NetworkID: networkID}.ToPortListQuery()
	if err != nil {
		return nil, err
	}

	var raw any
	if _, err := c.network.Get(ctx, c.network.ServiceURL("ports")+query, &raw, nil); err != nil {
		return nil, fmt.Errorf("list ports of network %s: %w", networkID, err)
	}
	body, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("list ports of network %s: %w", networkID, networkpolicy.ErrMalformedResponse)
	}
	if _, ok := body["ports"].([]any); !ok {
		return nil, fmt.Errorf("list ports of network %s: %w", networkID, networkpolicy.ErrMalformedResponse)
	}

	var list []port
	if err := (gophercloud.Result{Body: body}).ExtractIntoSlicePtr(&list, "ports"); err != nil {
		return nil, fmt.Errorf("decode ports of network %s: %w", networkID, err)
	}

	out := make([]networkpolicy.Port, 0, len(list))
	for _, p := range list {
		out = append(out, networkpolicy.Port{
			ID:              p.ID,
			SecurityEnabled: p.PortSecurityEnabled,
			Owner:           p.DeviceOwner,
			SecurityGroups:  p.SecurityGroups,
		})
	}
	return out, nil
}

// UpdatePort sets the security groups of the port, leaving every other attribute alone.
func (c *Client) UpdatePort(ctx context.Context, portID string, securityGroups []string) error {
	groups := append([]string{}, securityGroups...)
	if _, err := ports.Update(ctx, c.network, portID, ports.UpdateOpts{SecurityGroups: &groups}).Extract(); err != nil {
		return fmt.Errorf("update port %s: %w", portID, err)
	}
	return nil
}

// identityEndpoint appends the v3 API version to the auth URL unless it is already there.
func identityEndpoint(authURL string) string {
	authURL = strings.TrimRight(authURL, "/")
	if strings.HasSuffix(authURL, "/v3") {
		return authURL + "/"
	}
	return authURL + "/v3/"
}

package client

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/andaru/rws/result"
	"github.com/andaru/rws/xmlutil"
	"github.com/antchfx/xmlquery"
	"github.com/pkg/errors"
)

// SubscriptionProtocol is the WebSocket subprotocol of subscription channels
const SubscriptionProtocol = "robapi2_subscription"

// ErrSubscriptionClosed is returned once the controller closes the
// subscription channel
var ErrSubscriptionClosed = errors.New("subscription closed")

// Priority is a subscription priority
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

// SubscriptionResource is one resource to subscribe to
type SubscriptionResource struct {
	URI      string
	Priority Priority
}

// SubscriptionResources is an ordered set of resources for StartSubscription
type SubscriptionResources []SubscriptionResource

// Add appends a resource given by its full URI
func (r *SubscriptionResources) Add(uri string, p Priority) {
	*r = append(*r, SubscriptionResource{URI: uri, Priority: p})
}

// AddIOSignal subscribes to the state of an IO signal
func (r *SubscriptionResources) AddIOSignal(name string, p Priority) {
	r.Add(PathIOSignals+name+";state", p)
}

// AddRAPIDPersistantVariable subscribes to the value of a RAPID persistent variable
func (r *SubscriptionResources) AddRAPIDPersistantVariable(task string, symbol RAPIDSymbol, p Priority) {
	r.Add(symbol.path(task)+";value", p)
}

// body renders the subscription request body. The resource URIs are
// sent unescaped as the controller expects.
func (r SubscriptionResources) body() string {
	var b strings.Builder
	for i, res := range r {
		if i > 0 {
			b.WriteByte('&')
		}
		n := strconv.Itoa(i + 1)
		b.WriteString("resources=" + n)
		b.WriteString("&" + n + "=" + res.URI)
		b.WriteString("&" + n + "-p=" + strconv.Itoa(int(res.Priority)))
	}
	return b.String()
}

// StartSubscription creates a subscription for resources and opens its
// channel. A subscription already open is ended first; a failure to end
// it is kept in the result log and does not stop the new subscription.
func (c *Client) StartSubscription(ctx context.Context, resources SubscriptionResources) error {
	if len(resources) == 0 {
		return errors.New("no subscription resources")
	}
	if c.SubscriptionID() != "" {
		c.EndSubscription(ctx)
	}
	res, err := c.execute(ctx, http.MethodPost, PathSubscription, resources.body(), http.StatusCreated)
	if err != nil {
		return err
	}
	location := res.HeaderValue("Location")
	i := strings.Index(location, PathPoll)
	if i < 0 {
		return errors.Errorf("subscription location %q has no poll id", location)
	}
	id := location[i+len(PathPoll):]

	ws := c.comm.WebSocketConnect(ctx, PathPoll+id, SubscriptionProtocol)
	c.record(ws)
	if !ws.OK() {
		return &ResultError{Result: ws}
	}
	c.mu.Lock()
	c.subscription = id
	c.mu.Unlock()
	return nil
}

// SubscriptionID returns the id of the open subscription, or the empty string
func (c *Client) SubscriptionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscription
}

// WaitForSubscriptionEvent blocks until the next event arrives on the
// subscription channel and returns it parsed
func (c *Client) WaitForSubscriptionEvent(ctx context.Context) (*xmlquery.Node, error) {
	res := c.comm.WebSocketReceiveFrame(ctx)
	c.record(res)
	if !res.OK() {
		return nil, &ResultError{Result: res}
	}
	if res.WebSocket.Opcode == result.OpClose {
		return nil, ErrSubscriptionClosed
	}
	return xmlutil.Parse(string(res.WebSocket.Payload))
}

// EndSubscription deletes the subscription and shuts its channel down
func (c *Client) EndSubscription(ctx context.Context) error {
	c.mu.Lock()
	id := c.subscription
	c.subscription = ""
	c.mu.Unlock()
	if id == "" {
		return errors.New("no subscription open")
	}
	_, err := c.execute(ctx, http.MethodDelete, PathSubscription+"/"+id, "")
	if ws := c.comm.WebSocketShutdown(); ws.Status != result.StatusWebSocketNotAllocated {
		c.record(ws)
	}
	return err
}

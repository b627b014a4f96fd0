package auth

import (
	"log/slog"

	"tve-auth/internal/bus"
)

// CallbackAdapter receives engine notifications, from any goroutine, and
// turns each into exactly one bus event published from the orchestrator's
// loop. Notifications that arrive after Close are dropped.
type CallbackAdapter struct {
	o *Orchestrator
}

func (c *CallbackAdapter) enqueue(name string, fn func()) {
	if !c.o.loop.submit(fn) {
		c.o.log.Debug("callback dropped after close", slog.String("callback", name))
	}
}

// RequestorSetComplete implements Callbacks.
func (c *CallbackAdapter) RequestorSetComplete(ok bool) {
	c.enqueue("RequestorSetComplete", func() {
		o := c.o
		o.update(func(s *session) {
			if s.requestorCalls > 0 {
				s.requestorCalls--
			}
		})
		if !ok {
			o.dispatchError(ErrorInit,
				"Entitlement initialization failed",
				"The SetRequestor call failed. Please review the requestorId and signedRequestorId")
			if o.s.requestorCalls > 0 {
				o.log.Debug("requestor failure ignored, calls outstanding",
					slog.Int("outstanding", o.s.requestorCalls))
				return
			}
			// Queued behind any success already being sequenced, which wins.
			o.loop.submit(func() { o.advanceInit(evRequestorFailed, bus.Event{}) })
			return
		}
		o.publish(topicInternalRequestorReady, nil)
	})
}

// AuthenticationStatus implements Callbacks.
func (c *CallbackAdapter) AuthenticationStatus(authenticated bool, errorCode string) {
	c.enqueue("AuthenticationStatus", func() {
		o := c.o
		o.settleLogout()
		sig := sigNotAuthenticated
		if authenticated {
			sig = sigAuthenticated
		}
		o.publish(o.s.topicFor(sig), bus.Properties{
			PropIsAuthenticated: authenticated,
			PropProvider:        providerProp(o.s.currentProvider),
			PropErrorCode:       errorCode,
		})
	})
}

// SelectedProvider implements Callbacks.
func (c *CallbackAdapter) SelectedProvider(n *NativeProvider) {
	p := ProviderFromNative(n)
	c.enqueue("SelectedProvider", func() {
		o := c.o
		o.settleLogout()
		o.update(func(s *session) { s.currentProvider = p })
		sig := sigNoProvider
		if p != nil {
			sig = sigGotProvider
		}
		o.publish(o.s.topicFor(sig), bus.Properties{PropProvider: providerProp(p)})
	})
}

// ProviderList implements Callbacks.
func (c *CallbackAdapter) ProviderList(ns []*NativeProvider) {
	providers := ProvidersFromNative(ns)
	c.enqueue("ProviderList", func() {
		o := c.o
		o.settleLogout()
		o.publish(TopicDisplayProviderSelector, bus.Properties{PropProviders: providers})
	})
}

// LoginRedirect implements Callbacks.
func (c *CallbackAdapter) LoginRedirect(url string) {
	c.enqueue("LoginRedirect", func() {
		o := c.o
		o.publish(o.s.topicFor(sigLoginRedirect), bus.Properties{
			PropProvider: providerProp(o.s.currentProvider),
			PropURL:      url,
		})
	})
}

// AuthorizationToken implements Callbacks.
func (c *CallbackAdapter) AuthorizationToken(token, resourceID string) {
	c.enqueue("AuthorizationToken", func() {
		o := c.o
		item := o.takePending()
		o.publish(TopicAuthorized, bus.Properties{
			PropVideoItem:  videoItemProp(item),
			PropToken:      token,
			PropResourceID: resourceID,
		})
	})
}

// AuthorizationFailed implements Callbacks.
func (c *CallbackAdapter) AuthorizationFailed(resourceID, errorCode, errorDetail string) {
	c.enqueue("AuthorizationFailed", func() {
		o := c.o
		item := o.takePending()
		o.publish(TopicNotAuthorized, bus.Properties{
			PropVideoItem:   videoItemProp(item),
			PropErrorCode:   errorCode,
			PropErrorDetail: errorDetail,
			PropResourceID:  resourceID,
		})
	})
}

// TrackingEvent implements Callbacks.
func (c *CallbackAdapter) TrackingEvent(kind string, data []string) {
	data = append([]string(nil), data...)
	c.enqueue("TrackingEvent", func() {
		c.o.publish(TopicAuthTracking, bus.Properties{PropEventType: kind, PropData: data})
	})
}

// MetadataResult implements Callbacks.
func (c *CallbackAdapter) MetadataResult(key string, status MetadataStatus) {
	c.enqueue("MetadataResult", func() {
		c.o.publish(TopicGotMetadata, bus.Properties{PropKey: key, PropStatus: status})
	})
}

// PreauthorizedResources implements Callbacks.
func (c *CallbackAdapter) PreauthorizedResources(ids []string) {
	ids = append([]string(nil), ids...)
	c.enqueue("PreauthorizedResources", func() {
		c.o.publish(TopicPreAuthorized, bus.Properties{PropResourceIDs: ids})
	})
}

// takePending clears the pending item and returns it. The outcome event is
// published after the session no longer holds the item.
func (o *Orchestrator) takePending() *VideoItem {
	item := o.s.pendingVideoItem
	o.update(func(s *session) { s.pendingVideoItem = nil })
	return item
}

var _ Callbacks = (*CallbackAdapter)(nil)

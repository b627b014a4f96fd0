package auth

// Provider describes a pay-TV operator (MVPD). Values are never mutated after
// construction; share them by pointer or copy freely.
type Provider struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	LogoURL string `json:"logoUrl"`
}

// VideoItem is a catalog entry the UI asks to authorize.
type VideoItem struct {
	VideoID     string `json:"videoId"`
	ResourceID  string `json:"resourceId"`
	IsProtected bool   `json:"isProtected"`
}

// NativeProvider is the entitlement engine's own provider representation.
type NativeProvider struct {
	ID          string
	DisplayName string
	LogoURL     string
}

// MetadataStatus is the engine's answer to a metadata request.
type MetadataStatus struct {
	Found     bool   `json:"found"`
	Encrypted bool   `json:"encrypted"`
	Value     string `json:"value,omitempty"`
}

// ProviderFromNative converts an engine provider. A nil input yields nil,
// which stands for "no provider".
func ProviderFromNative(n *NativeProvider) *Provider {
	if n == nil {
		return nil
	}
	return &Provider{ID: n.ID, Name: n.DisplayName, LogoURL: n.LogoURL}
}

// ProvidersFromNative converts a provider list, skipping nil entries.
func ProvidersFromNative(ns []*NativeProvider) []Provider {
	out := make([]Provider, 0, len(ns))
	for _, n := range ns {
		if p := ProviderFromNative(n); p != nil {
			out = append(out, *p)
		}
	}
	return out
}

func (p *Provider) clone() *Provider {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func (v *VideoItem) clone() *VideoItem {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

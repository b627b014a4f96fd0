package auth

import "tve-auth/internal/bus"

// ProviderOf returns the provider carried by e, or nil for "no provider".
func ProviderOf(e bus.Event) *Provider {
	switch v := e.Get(PropProvider).(type) {
	case *Provider:
		return v.clone()
	case Provider:
		return &v
	}
	return nil
}

// ProvidersOf returns the provider list of a DISPLAY_PROVIDER_SELECTOR event.
func ProvidersOf(e bus.Event) []Provider {
	ps, _ := e.Get(PropProviders).([]Provider)
	return append([]Provider(nil), ps...)
}

// VideoItemOf returns the video item of an authorization outcome, or nil.
func VideoItemOf(e bus.Event) *VideoItem {
	switch v := e.Get(PropVideoItem).(type) {
	case *VideoItem:
		return v.clone()
	case VideoItem:
		return &v
	}
	return nil
}

// ErrorKindOf returns the kind of an AUTH_ERROR event.
func ErrorKindOf(e bus.Event) (ErrorKind, bool) {
	switch v := e.Get(PropKind).(type) {
	case ErrorKind:
		return v, true
	case string:
		k, err := ParseErrorKind(v)
		return k, err == nil
	}
	return 0, false
}

// StringsOf returns a string list property such as resourceIds or data.
func StringsOf(e bus.Event, key string) []string {
	ss, _ := e.Get(key).([]string)
	return append([]string(nil), ss...)
}

package evtx

// reorderArgs implements §4.10's provider-specific positional reordering.
// It returns nil when no mapping applies, signaling the caller to fall
// back to the layout's natural order. Mappings are pure functions of the
// name->value map already produced by the layout (§4.8); no hidden state.
func reorderArgs(provider string, eventID uint32, layout []LayoutEntry, subs []Substitution) []string {
	if provider != "Microsoft-Windows-RestartManager" {
		return nil
	}
	byName := layoutValuesByName(layout, subs)
	switch eventID {
	case 10000:
		return []string{
			firstPresent(byName, "RmSessionId", "Session"),
			firstPresent(byName, "UTCStartTime", "Time", "StartTime"),
		}
	case 10001:
		return []string{
			firstPresent(byName, "RmSessionId", "Session"),
			firstPresent(byName, "UTCStartTime", "StartTime", "Time"),
		}
	case 10010:
		return []string{
			firstPresent(byName, "FullPath", "Application", "AppPath", "DisplayName"),
			firstPresent(byName, "Pid", "ProcessId"),
			firstPresent(byName, "Reason", "Message", "Status"),
		}
	default:
		return nil
	}
}

// layoutValuesByName resolves each named entry's display value (literal
// text, or its substitution values joined) into a lookup map.
func layoutValuesByName(layout []LayoutEntry, subs []Substitution) map[string]string {
	m := make(map[string]string, len(layout))
	for _, e := range layout {
		if e.Name == "" {
			continue
		}
		m[e.Name] = entryDisplayValue(e, subs)
	}
	return m
}

// firstPresent returns the first key in keys with a present (possibly
// empty) entry in m, or "" if none of keys was ever a layout name.
func firstPresent(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return ""
}

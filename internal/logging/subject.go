package logging

import "strings"

// FormatSubject builds the component/stage/phase prefix used in console output,
// for example "controller [detection/check]".
func FormatSubject(component, stage, phase string) string {
	component = strings.TrimSpace(component)
	stage = strings.TrimSpace(stage)
	phase = strings.TrimSpace(phase)

	var scope string
	switch {
	case stage != "" && phase != "":
		scope = "[" + stage + "/" + phase + "]"
	case stage != "":
		scope = "[" + stage + "]"
	case phase != "":
		scope = "[" + phase + "]"
	}
	switch {
	case component != "" && scope != "":
		return component + " " + scope
	case component != "":
		return component
	default:
		return scope
	}
}

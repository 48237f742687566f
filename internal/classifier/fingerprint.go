// internal/classifier/fingerprint.go
package classifier

import "strings"

// Rule casa uma substring (sem diferenciar maiúsculas) do header Server.
type Rule struct {
	Substring    string
	Manufacturer string
	Model        string
}

// DefaultRules é avaliada em ordem; a primeira regra que casa vence.
var DefaultRules = []Rule{
	{Substring: "imou", Manufacturer: "IMOU", Model: "IMOU Camera"},
	{Substring: "hikvision", Manufacturer: "Hikvision", Model: "Hikvision Camera"},
	{Substring: "dahua", Manufacturer: "Dahua", Model: "Dahua Camera"},
	{Substring: "axis", Manufacturer: "Axis", Model: "Axis Camera"},
	{Substring: "foscam", Manufacturer: "Foscam", Model: "Foscam Camera"},
	{Substring: "simulator", Manufacturer: "DevTesting", Model: "Camera Simulator"},
}

// Fingerprint devolve fabricante/modelo para o header Server informado.
func Fingerprint(server string, rules []Rule) (Rule, bool) {
	s := strings.ToLower(server)
	if s == "" {
		return Rule{}, false
	}
	for _, r := range rules {
		if r.Substring != "" && strings.Contains(s, strings.ToLower(r.Substring)) {
			return r, true
		}
	}
	return Rule{}, false
}

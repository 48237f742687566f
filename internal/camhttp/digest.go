// internal/camhttp/digest.go
package camhttp

import (
	"crypto/md5"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

type digestChallenge struct {
	Realm  string
	Nonce  string
	Qop    string
	Opaque string
}

var digestRx = regexp.MustCompile(`(\w+)="?([^",]+)"?`)

func parseDigestAuthHeader(h string) (*digestChallenge, error) {
	if !strings.HasPrefix(strings.ToLower(h), "digest ") {
		return nil, fmt.Errorf("WWW-Authenticate is not Digest: %q", h)
	}
	h = strings.TrimSpace(h[len("Digest "):])
	res := &digestChallenge{}
	for _, kv := range digestRx.FindAllStringSubmatch(h, -1) {
		if len(kv) != 3 {
			continue
		}
		v := kv[2]
		switch strings.ToLower(kv[1]) {
		case "realm":
			res.Realm = v
		case "nonce":
			res.Nonce = v
		case "qop":
			// "auth,auth-int" -> ficamos com auth
			res.Qop = strings.TrimSpace(strings.Split(v, ",")[0])
		case "opaque":
			res.Opaque = v
		}
	}
	if res.Realm == "" || res.Nonce == "" {
		return nil, fmt.Errorf("realm/nonce missing in WWW-Authenticate: %q", h)
	}
	if res.Qop == "" {
		res.Qop = "auth"
	}
	return res, nil
}

func (d *digestChallenge) authorization(method, rawURL string, creds *Credentials) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	uri := u.RequestURI()

	nc := "00000001"
	cnonce := randomHex(16)
	ha1 := md5Hex(fmt.Sprintf("%s:%s:%s", creds.Username, d.Realm, creds.Password))
	ha2 := md5Hex(fmt.Sprintf("%s:%s", method, uri))
	response := md5Hex(fmt.Sprintf("%s:%s:%s:%s:%s:%s", ha1, d.Nonce, nc, cnonce, d.Qop, ha2))

	v := fmt.Sprintf(
		`Digest username="%s", realm="%s", nonce="%s", uri="%s", algorithm=MD5, response="%s", qop=%s, nc=%s, cnonce="%s"`,
		creds.Username, d.Realm, d.Nonce, uri, response, d.Qop, nc, cnonce,
	)
	if d.Opaque != "" {
		v += fmt.Sprintf(`, opaque="%s"`, d.Opaque)
	}
	return v, nil
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = crand.Read(b)
	return hex.EncodeToString(b)
}

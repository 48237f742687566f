// internal/capture/registry.go
package capture

import "sync"

// SnapshotPath é um caminho HTTP de snapshot conhecido.
type SnapshotPath struct {
	Name string
	Path string
}

const defaultVendor = "default"

var (
	registryMu sync.RWMutex
	// registry: fabricante normalizado -> caminhos em ordem de preferência
	registry = map[string][]SnapshotPath{}
)

// RegisterVendor registra (ou substitui) os caminhos de snapshot de um fabricante.
func RegisterVendor(manufacturer string, paths ...SnapshotPath) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[normalize(manufacturer)] = append([]SnapshotPath(nil), paths...)
}

// VendorPaths devolve os caminhos do fabricante ou, sem cadastro, os do default.
func VendorPaths(manufacturer string) []SnapshotPath {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if p, ok := registry[normalize(manufacturer)]; ok {
		return p
	}
	return registry[defaultVendor]
}

// GenericPaths são tentados depois dos caminhos do fabricante.
var GenericPaths = []SnapshotPath{
	{Name: "generic_cgi", Path: "/cgi-bin/snapshot.cgi"},
	{Name: "generic_snap", Path: "/snapshot.jpg"},
}

func init() {
	imou := []SnapshotPath{
		{Name: "imou_main", Path: "/tmpfs/snap.jpg"},
		{Name: "imou_alt", Path: "/tmpfs/snapshot.jpg"},
	}
	RegisterVendor(defaultVendor, imou...)
	RegisterVendor("imou", imou...)
	RegisterVendor("dahua",
		SnapshotPath{Name: "dahua_currentpic", Path: "/cgi-bin/currentpic.cgi"},
		SnapshotPath{Name: "dahua_snapshot", Path: "/cgi-bin/snapshot.cgi?channel=1"},
	)
	RegisterVendor("hikvision",
		SnapshotPath{Name: "hikvision_isapi", Path: "/ISAPI/Streaming/channels/101/picture"},
		SnapshotPath{Name: "hikvision_legacy", Path: "/Streaming/channels/1/picture"},
	)
	RegisterVendor("axis",
		SnapshotPath{Name: "axis_vapix", Path: "/axis-cgi/jpg/image.cgi"},
	)
	RegisterVendor("foscam",
		SnapshotPath{Name: "foscam_jpeg", Path: "/image/jpeg.cgi"},
		SnapshotPath{Name: "foscam_cgiproxy", Path: "/cgi-bin/CGIProxy.fcgi?cmd=snapPicture2"},
	)
}

func normalize(s string) string {
	b := make([]rune, 0, len(s))
	for _, r := range s {
		// remove espaços, hífen, underline
		if r == ' ' || r == '-' || r == '_' {
			continue
		}
		if r >= 'A' && r <= 'Z' {
			r = r + 32
		}
		b = append(b, r)
	}
	return string(b)
}

package export

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Faultbox/a2j/internal/scene"
	"github.com/Faultbox/a2j/pkg/encoding"
)

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// SanitizeName turns a scene name into an identifier every target accepts:
// accents are folded to ASCII, anything outside [a-zA-Z0-9_] becomes "_",
// a leading digit gets an "obj_" prefix and an empty result is "unnamed".
func SanitizeName(name string) string {
	s := invalidNameChars.ReplaceAllString(encoding.FoldASCII(name), "_")
	if s == "" {
		return "unnamed"
	}
	if s[0] >= '0' && s[0] <= '9' {
		s = "obj_" + s
	}
	return s
}

// namer hands out the on-disk names of one export. Names are assigned in
// SceneData order (cameras, meshes, locators) so every target resolves the
// same object to the same name. A clash gets a numeric suffix.
type namer struct {
	taken map[string]bool
	byKey map[string]string
}

func newNamer(sd *scene.SceneData) *namer {
	n := &namer{taken: map[string]bool{}, byKey: map[string]string{}}
	for i := range sd.Cameras {
		n.assign("camera:"+sd.Cameras[i].FullPath, sd.Cameras[i].DisplayName())
	}
	for i := range sd.Meshes {
		n.assign("mesh:"+sd.Meshes[i].FullPath, sd.Meshes[i].DisplayName())
	}
	for i := range sd.Transforms {
		n.assign("locator:"+sd.Transforms[i].FullPath, sd.Transforms[i].Name)
	}
	return n
}

func (n *namer) assign(key, display string) {
	if _, ok := n.byKey[key]; ok {
		return
	}
	base := SanitizeName(display)
	name := base
	for i := 2; n.taken[strings.ToLower(name)]; i++ {
		name = fmt.Sprintf("%s_%d", base, i)
	}
	n.taken[strings.ToLower(name)] = true
	n.byKey[key] = name
}

func (n *namer) camera(c *scene.CameraData) string { return n.byKey["camera:"+c.FullPath] }

func (n *namer) mesh(m *scene.MeshData) string { return n.byKey["mesh:"+m.FullPath] }

func (n *namer) locator(t *scene.TransformData) string { return n.byKey["locator:"+t.FullPath] }

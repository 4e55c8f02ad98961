package domain

import (
	"bytes"
	"cmp"
	"path/filepath"
	"slices"
	"strings"

	json "github.com/goccy/go-json"
)

// AssetID accepte indifféremment un id numérique ou une chaîne côté serveur.
type AssetID string

func (id *AssetID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = AssetID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = AssetID(n.String())
	return nil
}

type Video struct {
	ID        AssetID `json:"id"`
	SourceURL string  `json:"asset_url"`
	Order     int     `json:"asset_order"`
	LocalName string  `json:"asset_name"`
}

// FileName renvoie le nom local sans composante de chemin ("" si inutilisable).
func (v Video) FileName() string {
	name := strings.TrimSpace(v.LocalName)
	if name == "" {
		return ""
	}
	name = filepath.Base(filepath.Clean("/" + name))
	if name == "/" || name == "." || name == ".." {
		return ""
	}
	return name
}

// SortVideos trie par Order croissant; l'ordre de réception départage les égalités.
func SortVideos(videos []Video) {
	slices.SortStableFunc(videos, func(a, b Video) int {
		return cmp.Compare(a.Order, b.Order)
	})
}

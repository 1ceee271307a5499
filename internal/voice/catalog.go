package voice

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Voice is one selectable speech voice
type Voice struct {
	Name        string `yaml:"name" json:"name"`
	ID          string `yaml:"id" json:"id"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Catalog is an ordered, read-only list of known voices
type Catalog struct {
	voices []Voice
}

var defaultVoices = []Voice{
	{Name: "Rachel", ID: "EXAVITQu4vr4xnSDxMaL", Description: "Calm young female"},
	{Name: "Clyde", ID: "onwK4e9ZLuTAKqWW03F9", Description: "Middle-aged male"},
	{Name: "Charlotte", ID: "XB0fDUnXU5powFXDhCwa", Description: "Energetic female"},
	{Name: "Bill", ID: "pqHfZKP75CvOlQylNhV4", Description: "Strong male"},
	{Name: "George", ID: "JBFqnCBsd6RMkjVDRZzb", Description: "Warm British male"},
	{Name: "Domi", ID: "AZnzlk1XvdvUeBnXmlld", Description: "Strong female"},
	{Name: "Nicole", ID: "piTKgcLEGmPE4e6mEKli", Description: "Whispery female"},
	{Name: "Jessie", ID: "Zlb1dXrM653N07WRdFW3", Description: "Raspy male"},
	{Name: "Sarah", ID: "EXAVITQu4vr4xnSDxMaL", Description: "Professional female"},
	{Name: "Daniel", ID: "onwK4e9ZLuTAKqWW03F9", Description: "Professional male"},
	{Name: "Emily", ID: "LcfcDJNUP1GQjkzn1xUU", Description: "British female"},
	{Name: "James", ID: "IKne3meq5aSn9XLyUdCD", Description: "Deep male"},
	{Name: "Tom", ID: "gWf6X7X75oO2lF1dH79K", Description: "Friendly male"},
}

// DefaultCatalog returns the built-in voice list
func DefaultCatalog() *Catalog {
	voices := make([]Voice, len(defaultVoices))
	copy(voices, defaultVoices)
	return &Catalog{voices: voices}
}

// NewCatalog builds a catalog from voices, dropping entries without a name
// or ID
func NewCatalog(voices []Voice) *Catalog {
	c := &Catalog{}
	for _, v := range voices {
		v.Name = strings.TrimSpace(v.Name)
		v.ID = strings.TrimSpace(v.ID)
		if v.Name == "" || v.ID == "" {
			continue
		}
		c.voices = append(c.voices, v)
	}
	return c
}

type catalogFile struct {
	Voices []Voice `yaml:"voices"`
}

// LoadCatalog reads a YAML voice list. An empty path yields the built-in
// catalog.
//
//	voices:
//	  - name: Rachel
//	    id: EXAVITQu4vr4xnSDxMaL
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read voice catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse voice catalog %s: %w", path, err)
	}

	c := NewCatalog(file.Voices)
	if len(c.voices) == 0 {
		return nil, fmt.Errorf("voice catalog %s contains no usable voices", path)
	}
	return c, nil
}

// Voices returns a copy of the catalog in order
func (c *Catalog) Voices() []Voice {
	out := make([]Voice, len(c.voices))
	copy(out, c.voices)
	return out
}

// ByName finds a voice by case-insensitive name
func (c *Catalog) ByName(name string) (Voice, bool) {
	name = strings.TrimSpace(name)
	for _, v := range c.voices {
		if strings.EqualFold(v.Name, name) {
			return v, true
		}
	}
	return Voice{}, false
}

// ByID finds the first voice with the given provider ID
func (c *Catalog) ByID(id string) (Voice, bool) {
	for _, v := range c.voices {
		if v.ID == id {
			return v, true
		}
	}
	return Voice{}, false
}

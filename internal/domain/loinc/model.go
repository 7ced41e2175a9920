// Package loinc maintains the lab-code dictionary. The temporal engines only
// consume codes as opaque identifiers; the dictionary exists so front-ends
// can show human-readable names next to measurement history.
package loinc

import "fmt"

// Concept maps to the loinc table: one dictionary entry.
type Concept struct {
	LoincNum   string `db:"loinc_num" json:"loinc_num"`
	CommonName string `db:"common_name" json:"common_name"`
}

func (c *Concept) Validate() error {
	if c.LoincNum == "" {
		return fmt.Errorf("loinc code is required")
	}
	if c.CommonName == "" {
		return fmt.Errorf("common name is required")
	}
	return nil
}

package loinc

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

const sampleCSV = `"LOINC_NUM","COMPONENT","PROPERTY","LONG_COMMON_NAME","STATUS"
"6690-2","Leukocytes","NCnc","Leukocytes [#/volume] in Blood by Automated count","ACTIVE"
"2019-8","Carbon dioxide","PPres","Carbon dioxide [Partial pressure] in Arterial blood","ACTIVE"
"","orphan","x","Row without a code is skipped","ACTIVE"
"30313-1","Hemoglobin","MCnc","Hemoglobin [Mass/volume] in Arterial blood","ACTIVE"
`

func TestImportMapsColumnsByHeader(t *testing.T) {
	repo := newMockConceptRepo()
	im := NewImporter(repo, zerolog.Nop())

	n, err := im.Import(context.Background(), strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if n != 3 {
		t.Errorf("loaded %d concepts, want 3", n)
	}

	c, err := repo.GetByCode(context.Background(), "2019-8")
	if err != nil || c == nil {
		t.Fatalf("GetByCode: %v %v", c, err)
	}
	if c.CommonName != "Carbon dioxide [Partial pressure] in Arterial blood" {
		t.Errorf("wrong column mapped: %q", c.CommonName)
	}
}

func TestImportSkipsWhenSeeded(t *testing.T) {
	repo := newMockConceptRepo()
	repo.byCode["1-1"] = &Concept{LoincNum: "1-1", CommonName: "already here"}
	im := NewImporter(repo, zerolog.Nop())

	n, err := im.Import(context.Background(), strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if n != 0 {
		t.Errorf("expected skip, loaded %d", n)
	}

	im.Force = true
	n, err = im.Import(context.Background(), strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("forced Import: %v", err)
	}
	if n != 3 {
		t.Errorf("forced import loaded %d, want 3", n)
	}
}

func TestImportRejectsMissingColumns(t *testing.T) {
	im := NewImporter(newMockConceptRepo(), zerolog.Nop())
	_, err := im.Import(context.Background(), strings.NewReader("A,B\n1,2\n"))
	if err == nil {
		t.Fatal("expected error for missing header columns")
	}
}

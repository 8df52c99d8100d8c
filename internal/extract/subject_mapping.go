package extract

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Subject code resolution sources (§4.7).
const (
	SourceCSV       = "csv"
	SourceHash      = "hash"
	SourceStudyHash = "study_hash"
)

// SubjectResolver maps an original PatientID (plus, as a fallback key, its
// StudyInstanceUID) to the subject_code stored in the metadata database.
// A non-empty CSVTable entry always wins; otherwise the PatientID (or, if
// that is empty, the StudyInstanceUID) is hashed with Seed.
type SubjectResolver struct {
	CSVTable map[string]string
	Seed     string
}

// Resolve returns the subject code for (patientID, studyUID) and the source
// that produced it.
func (r *SubjectResolver) Resolve(patientID, studyUID string) (code string, source string) {
	if r.CSVTable != nil {
		if v, ok := r.CSVTable[patientID]; ok && v != "" {
			return v, SourceCSV
		}
	}
	if patientID != "" {
		return SubjectCodeGen(patientID, r.Seed), SourceHash
	}
	return SubjectCodeGen(studyUID, r.Seed), SourceStudyHash
}

// SubjectCodeGen deterministically derives a subject code from key and
// seed: blake2b-256(seed "|" key), hex-encoded and truncated to 16
// characters. Same key and seed always produce the same code, and distinct
// keys collide only as likely as the underlying hash.
func SubjectCodeGen(key, seed string) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(seed))
	h.Write([]byte{'|'})
	h.Write([]byte(key))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)[:16]
}

package recordfile

import "fmt"

// DataParseError reports a short read, missing header/footer, or an
// out-of-range type index while parsing a .dat file. It always fails
// the owning import task outright.
type DataParseError struct {
	Offset int64
	Reason string
}

func (e *DataParseError) Error() string {
	return fmt.Sprintf("data parse error at offset %d: %s", e.Offset, e.Reason)
}

// DataInvalidError reports a single malformed frame (bad length,
// undecodable JSON). ProcessAll counts it as one failed record and
// continues unless abortOnInvalid is set; it is not one of the apply
// engine's rollback kinds, so it never triggers a rollback.
type DataInvalidError struct {
	Offset int64
	Reason string
}

func (e *DataInvalidError) Error() string {
	return fmt.Sprintf("data invalid at offset %d: %s", e.Offset, e.Reason)
}

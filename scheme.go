package biglist

// Register the cloud storage schemes with afs so dataset roots may live in
// object storage as well as on a local filesystem.
import (
	_ "github.com/viant/afsc/gs"
	_ "github.com/viant/afsc/s3"
)

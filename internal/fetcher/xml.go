package fetcher

import (
	"encoding/xml"
	"io"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// DecodeXML decodes a whole XML document into v, honoring the charset
// declared in the prolog. The batch geocoding endpoints occasionally answer
// in ISO-8859-1, which encoding/xml rejects without a CharsetReader.
func DecodeXML(r io.Reader, v any) error {
	decoder := xml.NewDecoder(r)
	decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "xml: unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}

	if err := decoder.Decode(v); err != nil {
		return eris.Wrap(err, "xml: decode document")
	}
	return nil
}

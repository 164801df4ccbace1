package protocol

// layout describes the optional fields a known status carries. wire is
// what the server writes after the header; expose is what the decoder
// surfaces on the Response.
type layout struct {
	wire   Field
	expose Field
}

// The listing reply is preceded by the server's scratch file name, which
// has to be consumed to stay in sync but means nothing to the client.
// A server that sends a listing as content only cannot be decoded: status
// framing reads the content length as a name length and fails with a
// connection error once the stream runs short, and probe framing takes the
// same bytes for a name and finds no content after it.
var layouts = map[Status]layout{
	StatusRestored:    {wire: FieldName | FieldContent, expose: FieldName | FieldContent},
	StatusListing:     {wire: FieldName | FieldContent, expose: FieldContent},
	StatusOK:          {wire: FieldName, expose: FieldName},
	StatusNotFound:    {wire: FieldName, expose: FieldName},
	StatusNoFiles:     {},
	StatusServerError: {},
}

// WireFields returns the fields a reply with status s carries after its
// header, and false when s is not in the layout table.
func WireFields(s Status) (Field, bool) {
	l, ok := layouts[s]
	return l.wire, ok
}

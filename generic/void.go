package generic

// Void is the value type for things that only matter for their side effects, e.g. a Result[Void] for an operation
// with no return value.
type Void struct{}

func NewVoid() Void {
	return Void{}
}

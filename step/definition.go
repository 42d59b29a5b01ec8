package step

// Definition pairs a handler with its configuration.
type Definition struct {
	Config  Config
	Handler Handler
}

// NewDefinition creates a step definition with default bounds.
func NewDefinition(name string, fn HandlerFunc, opts ...Option) *Definition {
	if fn == nil {
		return NewHandlerDefinition(name, nil, opts...)
	}
	return NewHandlerDefinition(name, fn, opts...)
}

// NewHandlerDefinition is NewDefinition for handlers that are not plain
// functions.
func NewHandlerDefinition(name string, h Handler, opts ...Option) *Definition {
	def := &Definition{
		Config:  DefaultConfig(name),
		Handler: h,
	}
	for _, opt := range opts {
		opt(&def.Config)
	}
	return def
}

// Name returns the step name.
func (d *Definition) Name() string { return d.Config.Name }

package query

// Spec is the serializable form of a Builder, the way it travels through
// the command protocol.
type Spec struct {
	Fields       string   `json:"fields,omitempty"`
	Sort         string   `json:"sort,omitempty"`
	Take         *int     `json:"take,omitempty"`
	Skip         int      `json:"skip,omitempty"`
	First        bool     `json:"first,omitempty"`
	Filter       string   `json:"filter,omitempty"`
	FilterArg    any      `json:"filterarg,omitempty"`
	Modify       string   `json:"modify,omitempty"`
	ModifyArg    any      `json:"modifyarg,omitempty"`
	Transform    string   `json:"transform,omitempty"`
	TransformArg any      `json:"transformarg,omitempty"`
	Scalar       string   `json:"scalar,omitempty"`
	ScalarArg    any      `json:"scalararg,omitempty"`
	Backup       any      `json:"backup,omitempty"`
	Log          any      `json:"log,omitempty"`
	Payload      Document `json:"payload,omitempty"`
}

func FromSpec(spec *Spec) *Builder {
	return New().Assign(spec)
}

// Assign applies every directive present in spec.
func (b *Builder) Assign(spec *Spec) *Builder {
	if spec == nil {
		return b
	}
	if spec.Fields != "" {
		b.Fields(spec.Fields)
	}
	if spec.Sort != "" {
		b.Sort(spec.Sort)
	}
	if spec.Take != nil {
		b.Take(*spec.Take)
	}
	if spec.Skip > 0 {
		b.Skip(spec.Skip)
	}
	if spec.First {
		b.First()
	}
	if spec.Filter != "" {
		b.Filter(spec.Filter, spec.FilterArg)
	}
	if spec.Modify != "" {
		b.Modify(spec.Modify, spec.ModifyArg)
	}
	if spec.Transform != "" {
		b.Transform(spec.Transform, spec.TransformArg)
	}
	if spec.Scalar != "" {
		b.Scalar(spec.Scalar, spec.ScalarArg)
	}
	if spec.Backup != nil {
		b.Backup(spec.Backup)
	}
	if spec.Log != nil {
		b.Log(spec.Log)
	}
	if spec.Payload != nil {
		b.Payload(spec.Payload)
	}
	return b
}

// Spec returns the directives of b that were given as source text.
func (b *Builder) Spec() *Spec {
	take := b.take
	return &Spec{
		Fields:       b.fieldsSource,
		Sort:         b.sortSource,
		Take:         &take,
		Skip:         b.skip,
		First:        b.first,
		Filter:       b.filterSource,
		FilterArg:    b.filterArg,
		Modify:       b.modifySource,
		ModifyArg:    b.modifyArg,
		Transform:    b.transformSource,
		TransformArg: b.transformArg,
		Scalar:       b.scalarSource,
		ScalarArg:    b.scalarArg,
		Backup:       b.backupMeta,
		Log:          b.logMeta,
		Payload:      b.payload,
	}
}

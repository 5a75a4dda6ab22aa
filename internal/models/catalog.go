package models

type Plan struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name"`
	Price Money  `yaml:"price" json:"price"`
}

type Addon struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name"`
	Price Money  `yaml:"price" json:"price"`
}

type TimeSlot struct {
	ID    string `yaml:"id" json:"id"`
	Label string `yaml:"label" json:"label"`
}

type PaymentMethod struct {
	ID    string `yaml:"id" json:"id"`
	Label string `yaml:"label" json:"label"`
}

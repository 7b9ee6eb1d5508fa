package govapi

// GraduatesResponse is the top-level structure of the open-data API answer
// for one postgraduate program.
type GraduatesResponse struct {
	Program struct {
		Code        string `json:"codigo"`
		Name        string `json:"nome"`
		Institution string `json:"instituicao"`
		Field       string `json:"area_avaliacao"`
	} `json:"programa"`
	Graduates []GraduateRecord `json:"discentes"`
}

// GraduateRecord is one graduate entry in the API answer.
type GraduateRecord struct {
	Name           string   `json:"nome"`
	Institution    string   `json:"instituicao"`
	GraduationYear int      `json:"ano_titulacao"`
	DegreeLevel    string   `json:"nivel"`
	ThesisTitle    string   `json:"titulo_trabalho"`
	DefenseYear    int      `json:"ano_defesa"`
	Program        string   `json:"programa"`
	Advisor        string   `json:"orientador"`
	Abstract       string   `json:"resumo"`
	Keywords       []string `json:"palavras_chave"`
	WorkURL        string   `json:"url_trabalho"`
}

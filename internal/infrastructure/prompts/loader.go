package prompts

import (
	_ "embed"
)

//go:embed index_prediction_system.txt
var indexPredictionSystem string

//go:embed index_prediction_user.txt
var indexPredictionUser string

//go:embed select_value_system.txt
var selectValueSystem string

//go:embed select_value_user.txt
var selectValueUser string

//go:embed extraction_system.txt
var extractionSystem string

//go:embed extraction_user.txt
var extractionUser string

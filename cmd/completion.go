package cmd

import (
	"fmt"

	"github.com/etnz/foreignassets/date"
	"github.com/etnz/foreignassets/docs"
	"github.com/posener/complete/v2"
	"github.com/posener/complete/v2/predict"
)

// Completion describes the fas command line for shell completion.
func Completion() *complete.Command {
	var years predict.Set
	for y := 0; y < 5; y++ {
		years = append(years, fmt.Sprint(date.Today().Year()-1-y))
	}
	topics, _ := docs.GetAllTopics()
	topics = append(topics, docs.All)

	return &complete.Command{
		Sub: map[string]*complete.Command{
			"schedule": {
				Flags: map[string]complete.Predictor{
					"x":        predict.Nothing,
					"y":        predict.Nothing,
					"grouping": predict.Set{"symbol", "lot"},
					"whole":    predict.Nothing,
					"all":      predict.Nothing,
					"out":      predict.Files("*.csv"),
				},
				Args: years,
			},
			"fetch":    {Args: years},
			"sort":     {},
			"validate": {},
			"topic":    {Args: predict.Set(topics)},
		},
		Flags: map[string]complete.Predictor{
			"data":        predict.Dirs("*"),
			"no-internet": predict.Nothing,
			"v":           predict.Nothing,
		},
	}
}

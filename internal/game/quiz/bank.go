package quiz

// sliceBank is the built-in content bank. Real deployments swap in their own
// Bank via Config; this one keeps the kind playable out of the box.
type sliceBank []Question

var builtinBank = sliceBank{
	{Prompt: "What is the capital of France?", Answer: "Paris"},
	{Prompt: "How many continents are there?", Answer: "7"},
	{Prompt: "What is the chemical symbol for gold?", Answer: "Au"},
	{Prompt: "Which planet is known as the Red Planet?", Answer: "Mars"},
	{Prompt: "What is 12 x 12?", Answer: "144"},
	{Prompt: "Which ocean is the largest?", Answer: "Pacific"},
	{Prompt: "What gas do plants absorb from the air?", Answer: "CO2"},
	{Prompt: "How many sides does a hexagon have?", Answer: "6"},
	{Prompt: "What is the longest river in the world?", Answer: "Nile"},
	{Prompt: "In which year did World War II end?", Answer: "1945"},
}

func (b sliceBank) Pick(turnNumber int) Question {
	if len(b) == 0 {
		return Question{}
	}
	return b[(turnNumber-1)%len(b)]
}

func (b sliceBank) Answer(prompt string) (string, bool) {
	for _, q := range b {
		if q.Prompt == prompt {
			return q.Answer, true
		}
	}
	return "", false
}
